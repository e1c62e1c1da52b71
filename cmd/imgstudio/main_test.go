package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/manash/imgstudio/pkg/models"
)

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	t.Setenv("IMGSTUDIO_CONFIG_DIR", t.TempDir())
	t.Setenv("IMGSTUDIO_DATA_DIR", t.TempDir())

	out := &bytes.Buffer{}
	app := DefaultApp()
	app.Out = out
	app.Err = out
	return app, out
}

func resetFlags() {
	flagModel = ""
	flagSize = ""
	flagQuality = ""
	flagStyle = ""
	flagCount = 1
	flagEnhance = false
	flagVerbose = false
}

func TestPriceCommand(t *testing.T) {
	resetFlags()
	app, out := newTestApp(t)

	cmd := newRootCmd(app)
	cmd.SetArgs([]string{"price", "-m", "dall-e-3", "-s", "1024x1024", "-q", "hd"})
	cmd.SetOut(out)
	cmd.SetErr(out)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "$0.080 per image") {
		t.Errorf("output = %s, want hd unit price", out.String())
	}
}

func TestPriceCommandUnknownModel(t *testing.T) {
	resetFlags()
	app, out := newTestApp(t)

	cmd := newRootCmd(app)
	cmd.SetArgs([]string{"price", "-m", "dall-e-9"})
	cmd.SetOut(out)
	cmd.SetErr(out)

	if err := cmd.Execute(); err == nil {
		t.Fatal("Execute() error = nil for unknown model")
	}
}

func TestKeyShowWithoutCredential(t *testing.T) {
	resetFlags()
	app, out := newTestApp(t)

	cmd := newRootCmd(app)
	cmd.SetArgs([]string{"key", "show"})
	cmd.SetOut(out)
	cmd.SetErr(out)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "No credential stored.") {
		t.Errorf("output = %s", out.String())
	}
}

func TestHistoryEmpty(t *testing.T) {
	resetFlags()
	app, out := newTestApp(t)

	cmd := newRootCmd(app)
	cmd.SetArgs([]string{"history"})
	cmd.SetOut(out)
	cmd.SetErr(out)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "History is empty.") {
		t.Errorf("output = %s", out.String())
	}
}

func TestParamsFlagPrecedence(t *testing.T) {
	resetFlags()
	app, _ := newTestApp(t)
	if err := app.setup(); err != nil {
		t.Fatalf("setup() error = %v", err)
	}

	flagModel = models.ModelDallE2
	flagSize = "512x512"
	flagCount = 4

	p := app.params("a cat")
	if p.Model != models.ModelDallE2 {
		t.Errorf("Model = %q, want flag override", p.Model)
	}
	if p.Size != "512x512" {
		t.Errorf("Size = %q, want flag override", p.Size)
	}
	if p.Quantity != 4 {
		t.Errorf("Quantity = %d, want 4", p.Quantity)
	}
}
