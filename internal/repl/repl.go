package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/manash/imgstudio/internal/credential"
	"github.com/manash/imgstudio/internal/history"
	"github.com/manash/imgstudio/internal/image"
	"github.com/manash/imgstudio/internal/studio"
	"github.com/manash/imgstudio/pkg/models"
)

// Settings are the sticky generation options the user adjusts between
// prompts.
type Settings struct {
	Model    string
	Size     string
	Quality  string
	Style    string
	Quantity int
	Enhance  bool
}

type REPL struct {
	in         io.Reader
	out        io.Writer
	err        io.Writer
	orch       *studio.Orchestrator
	creds      *credential.Store
	validator  *credential.Validator
	hist       *history.Store
	registry   *models.ModelRegistry
	downloader *image.Downloader
	settings   Settings
	commands   map[string]Command
	running    bool
}

type Config struct {
	In         io.Reader
	Out        io.Writer
	Err        io.Writer
	Orch       *studio.Orchestrator
	Creds      *credential.Store
	Validator  *credential.Validator
	History    *history.Store
	Registry   *models.ModelRegistry
	Downloader *image.Downloader
	Settings   Settings
}

func New(cfg *Config) *REPL {
	r := &REPL{
		in:         cfg.In,
		out:        cfg.Out,
		err:        cfg.Err,
		orch:       cfg.Orch,
		creds:      cfg.Creds,
		validator:  cfg.Validator,
		hist:       cfg.History,
		registry:   cfg.Registry,
		downloader: cfg.Downloader,
		settings:   cfg.Settings,
		commands:   make(map[string]Command),
	}
	if r.settings.Model == "" {
		r.settings.Model = models.ModelDallE3
	}
	if r.settings.Quantity < 1 {
		r.settings.Quantity = 1
	}
	r.registerCommands()
	return r
}

func (r *REPL) Run(ctx context.Context) error {
	r.running = true
	r.printWelcome()

	scanner := bufio.NewScanner(r.in)
	for r.running {
		r.printPrompt()
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := r.execute(ctx, line); err != nil {
			fmt.Fprintf(r.err, "Error: %v\n", err)
		}
	}

	return scanner.Err()
}

func (r *REPL) execute(ctx context.Context, line string) error {
	parts := parseCommand(line)
	if len(parts) == 0 {
		return nil
	}

	cmdName := strings.ToLower(parts[0])
	args := parts[1:]

	cmd, ok := r.commands[cmdName]
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmdName)
	}

	return cmd.Execute(ctx, r, args)
}

func (r *REPL) Stop() {
	r.running = false
}

// params builds generation parameters for a prompt from the sticky settings.
func (r *REPL) params(prompt string) *models.GenerationParams {
	return &models.GenerationParams{
		Prompt:        prompt,
		Model:         r.settings.Model,
		Size:          r.settings.Size,
		Quality:       r.settings.Quality,
		Style:         r.settings.Style,
		Quantity:      r.settings.Quantity,
		EnhancePrompt: r.settings.Enhance,
	}
}

func (r *REPL) printWelcome() {
	fmt.Fprintln(r.out, "imgstudio interactive mode")
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'quit' to exit.")
	if _, ok := r.creds.Load(); !ok {
		fmt.Fprintln(r.out, "No credential configured. Run 'key set <secret>' first.")
	}
	fmt.Fprintln(r.out)
}

func (r *REPL) printPrompt() {
	fmt.Fprintf(r.out, "imgstudio [%s]> ", r.settings.Model)
}

func parseCommand(line string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, ch := range line {
		switch {
		case ch == '"' || ch == '\'':
			if inQuotes && ch == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else if !inQuotes {
				inQuotes = true
				quoteChar = ch
			} else {
				current.WriteRune(ch)
			}
		case ch == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
