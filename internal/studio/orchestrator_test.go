package studio

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/manash/imgstudio/internal/credential"
	"github.com/manash/imgstudio/internal/history"
	"github.com/manash/imgstudio/internal/provider"
	"github.com/manash/imgstudio/pkg/models"
)

const testKey = "sk-test1234567890abcdefghij"

// fakeGateway scripts provider behavior per call.
type fakeGateway struct {
	generateCalls int
	enhanceCalls  int

	failOnCall   int // 1-based; 0 means never fail
	generateErr  error
	enhanceErr   error
	enhancedText string

	lastParams *models.GenerationParams
}

func (g *fakeGateway) GenerateImage(ctx context.Context, params *models.GenerationParams) (*provider.Response, error) {
	g.generateCalls++
	g.lastParams = params
	if g.failOnCall > 0 && g.generateCalls >= g.failOnCall {
		return nil, g.generateErr
	}
	return &provider.Response{
		Images: []provider.Image{
			{URL: fmt.Sprintf("https://example.com/image-%d.png", g.generateCalls), RevisedPrompt: "revised"},
		},
		RevisedPrompt: "revised",
	}, nil
}

func (g *fakeGateway) EnhancePrompt(ctx context.Context, prompt string) (string, error) {
	g.enhanceCalls++
	if g.enhanceErr != nil {
		return prompt, g.enhanceErr
	}
	if g.enhancedText != "" {
		return g.enhancedText, nil
	}
	return prompt, nil
}

func (g *fakeGateway) ValidateKey(ctx context.Context, key string) error {
	return nil
}

type fixture struct {
	orch    *Orchestrator
	gateway *fakeGateway
	hist    *history.Store
	creds   *credential.Store
}

func newFixture(t *testing.T, withKey bool) *fixture {
	t.Helper()

	creds := credential.NewStoreWithDir(t.TempDir())
	if withKey {
		if err := creds.Save(testKey); err != nil {
			t.Fatalf("failed to save test key: %v", err)
		}
	}

	hist, err := history.NewStoreWithPath(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}
	t.Cleanup(func() { hist.Close() })

	gateway := &fakeGateway{}
	orch := New(&Config{
		Credentials: creds,
		NewGateway: func(secret string) (provider.Gateway, error) {
			if secret != testKey {
				return nil, provider.ErrInvalidCredential
			}
			return gateway, nil
		},
		History:  hist,
		Registry: models.DefaultRegistry(),
		// Long enough that terminal states stay observable; the settle test
		// shortens it explicitly.
		SettleDelay: time.Minute,
	})

	return &fixture{orch: orch, gateway: gateway, hist: hist, creds: creds}
}

func TestGenerateHappyPath(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	records, err := f.orch.Generate(ctx, &models.GenerationParams{
		Prompt:   "a cat",
		Model:    models.ModelDallE3,
		Quantity: 1,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.OriginalPrompt != "a cat" {
		t.Errorf("OriginalPrompt = %q", rec.OriginalPrompt)
	}
	if rec.RevisedPrompt != "revised" {
		t.Errorf("RevisedPrompt = %q", rec.RevisedPrompt)
	}
	if want := decimal.NewFromFloat(0.040); !rec.Cost.Equal(want) {
		t.Errorf("Cost = %s, want 0.040", rec.Cost)
	}
	if rec.Quality != "standard" || rec.Style != "vivid" || rec.Size != "1024x1024" {
		t.Errorf("defaults not applied: %+v", rec)
	}

	// The record is durable, not just returned.
	stored, err := f.hist.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if !stored.Cost.Equal(rec.Cost) {
		t.Errorf("persisted cost = %s, want %s", stored.Cost, rec.Cost)
	}

	snap := f.orch.Snapshot()
	if snap.Status != StatusComplete {
		t.Errorf("status = %s, want complete", snap.Status)
	}
	if snap.Progress != 100 {
		t.Errorf("progress = %v, want 100", snap.Progress)
	}
}

func TestGenerateWithoutCredential(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.orch.Generate(ctx, &models.GenerationParams{
		Prompt: "a cat", Model: models.ModelDallE3, Quantity: 1,
	})
	if !errors.Is(err, provider.ErrCredentialRequired) {
		t.Fatalf("Generate() error = %v, want ErrCredentialRequired", err)
	}
	if f.gateway.generateCalls != 0 {
		t.Errorf("gateway called %d times without credential", f.gateway.generateCalls)
	}

	count, _ := f.hist.Count(ctx)
	if count != 0 {
		t.Errorf("history has %d records, want 0", count)
	}

	if snap := f.orch.Snapshot(); snap.Status != StatusError {
		t.Errorf("status = %s, want error", snap.Status)
	}
}

func TestGenerateUnknownModel(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.orch.Generate(context.Background(), &models.GenerationParams{
		Prompt: "a cat", Model: "dall-e-9", Quantity: 1,
	})
	if !errors.Is(err, models.ErrUnknownModel) {
		t.Fatalf("Generate() error = %v, want ErrUnknownModel", err)
	}
}

func TestGenerateInvalidSize(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.orch.Generate(context.Background(), &models.GenerationParams{
		Prompt: "a cat", Model: models.ModelDallE3, Size: "640x480", Quantity: 1,
	})
	if !errors.Is(err, models.ErrInvalidSize) {
		t.Fatalf("Generate() error = %v, want ErrInvalidSize", err)
	}
	if f.gateway.generateCalls != 0 {
		t.Error("gateway called for invalid params")
	}
}

func TestGenerateMultiUnitPartialFailure(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.gateway.failOnCall = 2
	f.gateway.generateErr = provider.ErrRateLimited

	records, err := f.orch.Generate(ctx, &models.GenerationParams{
		Prompt: "a cat", Model: models.ModelDallE2, Size: "512x512", Quantity: 3,
	})
	if !errors.Is(err, provider.ErrRateLimited) {
		t.Fatalf("Generate() error = %v, want ErrRateLimited", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1 persisted before the failure", len(records))
	}
	if f.gateway.generateCalls != 2 {
		t.Errorf("gateway called %d times, want 2 (failure stops the loop)", f.gateway.generateCalls)
	}

	count, _ := f.hist.Count(ctx)
	if count != 1 {
		t.Errorf("history has %d records, want 1", count)
	}

	snap := f.orch.Snapshot()
	if snap.Status != StatusError {
		t.Errorf("status = %s, want error", snap.Status)
	}
	if !errors.Is(snap.Err, provider.ErrRateLimited) {
		t.Errorf("snapshot err = %v", snap.Err)
	}
}

func TestGenerateQuantityClamped(t *testing.T) {
	f := newFixture(t, true)

	records, err := f.orch.Generate(context.Background(), &models.GenerationParams{
		Prompt: "a cat", Model: models.ModelDallE3, Quantity: 5,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1 (dall-e-3 clamps to a single image)", len(records))
	}
	if f.gateway.generateCalls != 1 {
		t.Errorf("gateway called %d times, want 1", f.gateway.generateCalls)
	}
}

func TestGenerateDallE2StripsQualityStyle(t *testing.T) {
	f := newFixture(t, true)

	records, err := f.orch.Generate(context.Background(), &models.GenerationParams{
		Prompt: "a cat", Model: models.ModelDallE2, Size: "256x256", Quality: "hd", Style: "vivid", Quantity: 1,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if f.gateway.lastParams.Quality != "" || f.gateway.lastParams.Style != "" {
		t.Errorf("dall-e-2 request carried quality=%q style=%q",
			f.gateway.lastParams.Quality, f.gateway.lastParams.Style)
	}
	if records[0].Quality != "" || records[0].Style != "" {
		t.Errorf("dall-e-2 record carried quality=%q style=%q", records[0].Quality, records[0].Style)
	}
}

func TestGenerateWithEnhancement(t *testing.T) {
	f := newFixture(t, true)
	f.gateway.enhancedText = "a majestic cat in golden light"

	records, err := f.orch.Generate(context.Background(), &models.GenerationParams{
		Prompt: "a cat", Model: models.ModelDallE3, Quantity: 1, EnhancePrompt: true,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if f.gateway.enhanceCalls != 1 {
		t.Errorf("enhance called %d times, want 1", f.gateway.enhanceCalls)
	}

	rec := records[0]
	if rec.Prompt != "a majestic cat in golden light" {
		t.Errorf("Prompt = %q, want enhanced prompt", rec.Prompt)
	}
	if rec.OriginalPrompt != "a cat" {
		t.Errorf("OriginalPrompt = %q, want the user's words", rec.OriginalPrompt)
	}

	if f.gateway.lastParams.Prompt != "a majestic cat in golden light" {
		t.Errorf("gateway got prompt %q, want enhanced", f.gateway.lastParams.Prompt)
	}
}

func TestGenerateEnhancementFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, true)
	f.gateway.enhanceErr = provider.ErrRateLimited

	records, err := f.orch.Generate(context.Background(), &models.GenerationParams{
		Prompt: "a cat", Model: models.ModelDallE3, Quantity: 1, EnhancePrompt: true,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v, enhancement failure must not abort", err)
	}
	if records[0].Prompt != "a cat" {
		t.Errorf("Prompt = %q, want original after failed enhancement", records[0].Prompt)
	}
	if snap := f.orch.Snapshot(); snap.Status != StatusComplete {
		t.Errorf("status = %s, want complete", snap.Status)
	}
}

func TestSessionSettlesToIdle(t *testing.T) {
	f := newFixture(t, true)
	f.orch.settleDelay = 10 * time.Millisecond

	_, err := f.orch.Generate(context.Background(), &models.GenerationParams{
		Prompt: "a cat", Model: models.ModelDallE3, Quantity: 1,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if snap := f.orch.Snapshot(); snap.Status != StatusComplete {
		t.Fatalf("status = %s, want complete before settle", snap.Status)
	}

	deadline := time.Now().Add(time.Second)
	for {
		if f.orch.Snapshot().Status == StatusIdle {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session did not settle back to idle")
		}
		time.Sleep(5 * time.Millisecond)
	}

	snap := f.orch.Snapshot()
	if snap.Progress != 0 || snap.Results != 0 || snap.Err != nil {
		t.Errorf("settled snapshot not reset: %+v", snap)
	}
}

func TestProgressMonotonicWithinRun(t *testing.T) {
	f := newFixture(t, true)

	var progress []float64
	f.orch.observer = func(s Snapshot) {
		progress = append(progress, s.Progress)
	}

	_, err := f.orch.Generate(context.Background(), &models.GenerationParams{
		Prompt: "a cat", Model: models.ModelDallE2, Size: "256x256", Quantity: 3, EnhancePrompt: true,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress went backwards: %v", progress)
		}
	}
	if last := progress[len(progress)-1]; last != 100 {
		t.Errorf("final progress = %v, want 100", last)
	}
}

func TestGenerateBatchStopsOnFirstFailure(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.gateway.failOnCall = 2
	f.gateway.generateErr = provider.ErrContentPolicy

	prompts := []string{"one", "two", "three"}
	records, err := f.orch.GenerateBatch(ctx, prompts, &models.GenerationParams{
		Model: models.ModelDallE3,
	})
	if !errors.Is(err, provider.ErrContentPolicy) {
		t.Fatalf("GenerateBatch() error = %v, want ErrContentPolicy", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1 from the first prompt", len(records))
	}
	if f.gateway.generateCalls != 2 {
		t.Errorf("gateway called %d times, want 2", f.gateway.generateCalls)
	}

	count, _ := f.hist.Count(ctx)
	if count != 1 {
		t.Errorf("history has %d records, want 1", count)
	}
}

func TestEnhancePromptOnly(t *testing.T) {
	f := newFixture(t, true)
	f.gateway.enhancedText = "an elaborate cat"

	if got := f.orch.EnhancePromptOnly(context.Background(), "a cat"); got != "an elaborate cat" {
		t.Errorf("EnhancePromptOnly() = %q", got)
	}
}

func TestEnhancePromptOnlyFallsBack(t *testing.T) {
	// Without a credential the input comes back unchanged.
	f := newFixture(t, false)
	if got := f.orch.EnhancePromptOnly(context.Background(), "a cat"); got != "a cat" {
		t.Errorf("EnhancePromptOnly() = %q, want input back", got)
	}

	// Same on enhancement failure.
	f = newFixture(t, true)
	f.gateway.enhanceErr = errors.New("boom")
	if got := f.orch.EnhancePromptOnly(context.Background(), "a cat"); got != "a cat" {
		t.Errorf("EnhancePromptOnly() = %q, want input back", got)
	}
}
