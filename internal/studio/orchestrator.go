package studio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/manash/imgstudio/internal/credential"
	"github.com/manash/imgstudio/internal/history"
	"github.com/manash/imgstudio/internal/pricing"
	"github.com/manash/imgstudio/internal/provider"
	"github.com/manash/imgstudio/pkg/models"
)

// DefaultSettleDelay is how long a terminal status stays visible before the
// session resets to idle.
const DefaultSettleDelay = 2 * time.Second

// GatewayFactory builds a provider gateway bound to one credential.
type GatewayFactory func(secret string) (provider.Gateway, error)

// Config wires an Orchestrator. Credentials, NewGateway, History, and
// Registry are required.
type Config struct {
	Credentials *credential.Store
	NewGateway  GatewayFactory
	History     *history.Store
	Registry    *models.ModelRegistry
	Logger      *zap.Logger
	Observer    func(Snapshot)
	SettleDelay time.Duration
}

// Orchestrator drives a generation request end to end: credential lookup,
// optional prompt enhancement, pricing, the sequential per-image request
// loop, and durable history persistence of every successful unit.
//
// The per-image loop is deliberately sequential. Provider rate limits make
// concurrency counterproductive, and awaiting each unit gives accurate
// progress plus clean partial-success semantics: completed units are already
// persisted when a later unit fails.
type Orchestrator struct {
	creds       *credential.Store
	newGateway  GatewayFactory
	history     *history.Store
	registry    *models.ModelRegistry
	logger      *zap.Logger
	observer    func(Snapshot)
	settleDelay time.Duration

	mu   sync.Mutex
	sess session
	run  uint64
}

func New(cfg *Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	settle := cfg.SettleDelay
	if settle <= 0 {
		settle = DefaultSettleDelay
	}

	return &Orchestrator{
		creds:       cfg.Credentials,
		newGateway:  cfg.NewGateway,
		history:     cfg.History,
		registry:    cfg.Registry,
		logger:      logger,
		observer:    cfg.Observer,
		settleDelay: settle,
		sess:        session{status: StatusIdle},
	}
}

// Snapshot returns the current session state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sess.snapshot()
}

// Generate runs one orchestration. On a unit failure the remaining units are
// abandoned but records already appended stay in history; the returned slice
// holds everything that was persisted.
func (o *Orchestrator) Generate(ctx context.Context, params *models.GenerationParams) ([]*history.Record, error) {
	run := o.begin()

	if o.creds == nil {
		return nil, o.fail(run, provider.ErrCredentialRequired)
	}
	secret, ok := o.creds.Load()
	if !ok {
		return nil, o.fail(run, provider.ErrCredentialRequired)
	}

	caps, ok := o.registry.Get(params.Model)
	if !ok {
		return nil, o.fail(run, fmt.Errorf("%w: %q", models.ErrUnknownModel, params.Model))
	}

	p := *params
	caps.ApplyDefaults(&p)
	caps.ClampQuantity(&p)
	normalize(caps, &p)

	if err := caps.Validate(&p); err != nil {
		return nil, o.fail(run, err)
	}

	gateway, err := o.newGateway(secret)
	if err != nil {
		return nil, o.fail(run, err)
	}

	workingPrompt := p.Prompt
	if p.EnhancePrompt {
		o.transition(run, StatusEnhancing, progressEnhancing)
		enhanced, err := gateway.EnhancePrompt(ctx, p.Prompt)
		if err != nil {
			// Enhancement is never fatal: keep the original prompt.
			o.logger.Warn("prompt enhancement failed, using original prompt", zap.Error(err))
		} else if enhanced != "" {
			workingPrompt = enhanced
		}
	}

	estimate := pricing.EstimateCost(p.Model, p.Size, p.Quality, p.Quantity)

	o.transition(run, StatusGenerating, progressGenerating)

	records := make([]*history.Record, 0, p.Quantity)
	for i := 0; i < p.Quantity; i++ {
		o.setProgress(run, progressGenerating+float64(i)/float64(p.Quantity)*progressLoopSpan)

		unit := p
		unit.Prompt = workingPrompt
		unit.Quantity = 1

		resp, err := gateway.GenerateImage(ctx, &unit)
		if err != nil {
			o.logger.Error("image request failed",
				zap.Int("unit", i+1),
				zap.Int("quantity", p.Quantity),
				zap.Error(err))
			return records, o.fail(run, err)
		}

		img := resp.Images[0]
		rec := &history.Record{
			ID:             uuid.New().String(),
			ImageURL:       img.URL,
			Prompt:         workingPrompt,
			OriginalPrompt: params.Prompt,
			RevisedPrompt:  img.RevisedPrompt,
			Model:          p.Model,
			Size:           p.Size,
			Quality:        p.Quality,
			Style:          p.Style,
			Cost:           estimate.PerImage,
			CreatedAt:      time.Now(),
		}

		// Persist before starting the next unit so an interruption loses at
		// most one unit of billed work.
		if err := o.history.Append(ctx, rec); err != nil {
			return records, o.fail(run, fmt.Errorf("failed to record generation: %w", err))
		}

		records = append(records, rec)
		o.addResult(run)
	}

	o.complete(run)
	return records, nil
}

// GenerateBatch runs Generate once per prompt with quantity one. The batch
// stops at the first failing prompt; records from earlier prompts are kept.
func (o *Orchestrator) GenerateBatch(ctx context.Context, prompts []string, shared *models.GenerationParams) ([]*history.Record, error) {
	var all []*history.Record
	for i, prompt := range prompts {
		p := *shared
		p.Prompt = prompt
		p.Quantity = 1

		records, err := o.Generate(ctx, &p)
		all = append(all, records...)
		if err != nil {
			return all, fmt.Errorf("prompt %d of %d: %w", i+1, len(prompts), err)
		}
	}
	return all, nil
}

// EnhancePromptOnly returns an elaborated prompt, or the input unchanged on
// any failure. It never returns an error.
func (o *Orchestrator) EnhancePromptOnly(ctx context.Context, prompt string) string {
	if o.creds == nil {
		return prompt
	}
	secret, ok := o.creds.Load()
	if !ok {
		return prompt
	}

	gateway, err := o.newGateway(secret)
	if err != nil {
		return prompt
	}

	enhanced, err := gateway.EnhancePrompt(ctx, prompt)
	if err != nil {
		o.logger.Warn("prompt enhancement failed", zap.Error(err))
		return prompt
	}
	if enhanced == "" {
		return prompt
	}
	return enhanced
}

// normalize drops fields the tier does not understand; the provider rejects
// unknown fields for dall-e-2.
func normalize(caps *models.ModelCapabilities, p *models.GenerationParams) {
	if !caps.SupportsQuality {
		p.Quality = ""
	}
	if !caps.SupportsStyle {
		p.Style = ""
	}
}

func (o *Orchestrator) begin() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.run++
	o.sess = session{status: StatusPreparing}
	run := o.run
	o.notifyLocked()
	return run
}

func (o *Orchestrator) transition(run uint64, status Status, progress float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if run != o.run {
		return
	}
	o.sess.status = status
	if progress > o.sess.progress {
		o.sess.progress = progress
	}
	o.notifyLocked()
}

func (o *Orchestrator) setProgress(run uint64, progress float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if run != o.run {
		return
	}
	if progress > o.sess.progress {
		o.sess.progress = progress
	}
	o.notifyLocked()
}

func (o *Orchestrator) addResult(run uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if run != o.run {
		return
	}
	o.sess.results++
	o.notifyLocked()
}

func (o *Orchestrator) complete(run uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if run != o.run {
		return
	}
	o.sess.status = StatusComplete
	o.sess.progress = progressComplete
	o.notifyLocked()
	o.scheduleSettleLocked(run)
}

// fail moves the session to the error state and returns the classified error
// unchanged so callers can errors.Is against the taxonomy.
func (o *Orchestrator) fail(run uint64, err error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if run != o.run {
		return err
	}
	o.sess.status = StatusError
	o.sess.err = err
	o.notifyLocked()
	o.scheduleSettleLocked(run)
	return err
}

// scheduleSettleLocked resets a terminal session back to idle after the
// settle delay, unless a newer run has started.
func (o *Orchestrator) scheduleSettleLocked(run uint64) {
	time.AfterFunc(o.settleDelay, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if run != o.run || !o.sess.status.Terminal() {
			return
		}
		o.sess = session{status: StatusIdle}
		o.notifyLocked()
	})
}

func (o *Orchestrator) notifyLocked() {
	if o.observer != nil {
		o.observer(o.sess.snapshot())
	}
}
