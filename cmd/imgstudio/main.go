package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/manash/imgstudio/internal/batch"
	"github.com/manash/imgstudio/internal/config"
	"github.com/manash/imgstudio/internal/credential"
	"github.com/manash/imgstudio/internal/history"
	"github.com/manash/imgstudio/internal/image"
	"github.com/manash/imgstudio/internal/pricing"
	"github.com/manash/imgstudio/internal/provider"
	"github.com/manash/imgstudio/internal/provider/openai"
	"github.com/manash/imgstudio/internal/repl"
	"github.com/manash/imgstudio/internal/studio"
	"github.com/manash/imgstudio/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagModel   string
	flagSize    string
	flagQuality string
	flagStyle   string
	flagCount   int
	flagEnhance bool
	flagVerbose bool
)

// App carries the injectable pieces so tests can swap them out.
type App struct {
	Out      io.Writer
	Err      io.Writer
	Registry *models.ModelRegistry
	Config   *config.Config
	Logger   *zap.Logger

	NewGateway func(secret string) (provider.Gateway, error)
	NewCreds   func() (*credential.Store, error)
	NewHistory func() (*history.Store, error)
}

func DefaultApp() *App {
	app := &App{
		Out:      os.Stdout,
		Err:      os.Stderr,
		Registry: models.DefaultRegistry(),
		Logger:   zap.NewNop(),
	}
	app.NewCreds = credential.NewStore
	return app
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	app := DefaultApp()
	rootCmd := newRootCmd(app)
	return rootCmd.Execute()
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imgstudio [prompt]",
		Short: "Generate AI images with your own provider credential",
		Long: `imgstudio is a client for OpenAI image generation (DALL-E 2 and DALL-E 3).

You bring your own API key; it is stored encrypted on this machine and sent
only to the provider. Every generated image is recorded in a local history
with its cost.

Examples:
  imgstudio "a sunset over mountains"
  imgstudio -m dall-e-3 -s 1792x1024 -q hd --enhance "panoramic cityscape"
  imgstudio -m dall-e-2 -n 4 "logo sketches"
  imgstudio            (interactive mode)`,
		Args:    cobra.MaximumNArgs(1),
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.setup(); err != nil {
				return err
			}
			if len(args) == 0 {
				return runInteractive(cmd.Context(), app)
			}
			return runGenerate(cmd.Context(), app, args[0])
		},
	}

	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "model to use (dall-e-2, dall-e-3)")
	cmd.PersistentFlags().StringVarP(&flagSize, "size", "s", "", "image size (e.g., 1024x1024)")
	cmd.PersistentFlags().StringVarP(&flagQuality, "quality", "q", "", "quality for dall-e-3 (standard, hd)")
	cmd.PersistentFlags().StringVar(&flagStyle, "style", "", "style for dall-e-3 (vivid, natural)")
	cmd.PersistentFlags().IntVarP(&flagCount, "count", "n", 1, "number of images to generate")
	cmd.PersistentFlags().BoolVar(&flagEnhance, "enhance", false, "enhance the prompt before generating")

	cmd.AddCommand(newKeyCmd(app))
	cmd.AddCommand(newBatchCmd(app))
	cmd.AddCommand(newEnhanceCmd(app))
	cmd.AddCommand(newHistoryCmd(app))
	cmd.AddCommand(newPriceCmd(app))

	return cmd
}

// setup finishes wiring once flags are parsed.
func (app *App) setup() error {
	if app.Config == nil {
		configDir := os.Getenv("IMGSTUDIO_CONFIG_DIR")
		cfg, err := config.Load(configDir)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		app.Config = cfg
	}

	if flagVerbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		app.Logger = logger
	}

	if app.NewGateway == nil {
		cfg := app.Config
		logger := app.Logger
		app.NewGateway = func(secret string) (provider.Gateway, error) {
			return openai.New(&provider.Config{
				APIKey:     secret,
				BaseURL:    cfg.BaseURL,
				TimeoutSec: cfg.TimeoutSec,
			}, logger)
		}
	}

	if app.NewHistory == nil {
		cfg := app.Config
		app.NewHistory = func() (*history.Store, error) {
			return history.NewStoreWithPath(cfg.HistoryPath())
		}
	}

	return nil
}

func (app *App) orchestrator(creds *credential.Store, hist *history.Store, observer func(studio.Snapshot)) *studio.Orchestrator {
	return studio.New(&studio.Config{
		Credentials: creds,
		NewGateway:  app.NewGateway,
		History:     hist,
		Registry:    app.Registry,
		Logger:      app.Logger,
		Observer:    observer,
	})
}

func (app *App) params(prompt string) *models.GenerationParams {
	p := models.NewParams(prompt)
	p.Model = app.Config.DefaultModel
	p.Size = app.Config.DefaultSize
	p.Quality = app.Config.DefaultQuality
	p.Style = app.Config.DefaultStyle
	p.EnhancePrompt = app.Config.AutoEnhance

	if flagModel != "" {
		p.Model = flagModel
	}
	if flagSize != "" {
		p.Size = flagSize
	}
	if flagQuality != "" {
		p.Quality = flagQuality
	}
	if flagStyle != "" {
		p.Style = flagStyle
	}
	if flagCount > 0 {
		p.Quantity = flagCount
	}
	if flagEnhance {
		p.EnhancePrompt = true
	}
	return p
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runGenerate(parent context.Context, app *App, prompt string) error {
	ctx, cancel := signalContext(parent)
	defer cancel()

	creds, err := app.NewCreds()
	if err != nil {
		return err
	}
	hist, err := app.NewHistory()
	if err != nil {
		return err
	}
	defer hist.Close()

	orch := app.orchestrator(creds, hist, progressPrinter(app.Err))

	params := app.params(prompt)
	records, err := orch.Generate(ctx, params)
	for _, rec := range records {
		fmt.Fprintf(app.Out, "[%s] %s ($%s)\n", rec.ID, rec.ImageURL, rec.Cost.StringFixed(3))
		if rec.RevisedPrompt != "" {
			fmt.Fprintf(app.Out, "  revised: %s\n", rec.RevisedPrompt)
		}
	}
	if err != nil {
		if len(records) > 0 {
			fmt.Fprintf(app.Err, "Stopped after %d image(s); earlier results are kept in history.\n", len(records))
		}
		return err
	}

	fmt.Fprintln(app.Out, "Done!")
	return nil
}

func runInteractive(parent context.Context, app *App) error {
	ctx, cancel := signalContext(parent)
	defer cancel()

	creds, err := app.NewCreds()
	if err != nil {
		return err
	}
	hist, err := app.NewHistory()
	if err != nil {
		return err
	}
	defer hist.Close()

	orch := app.orchestrator(creds, hist, nil)
	validator := credential.NewValidator(&keyProber{app: app})

	r := repl.New(&repl.Config{
		In:         os.Stdin,
		Out:        app.Out,
		Err:        app.Err,
		Orch:       orch,
		Creds:      creds,
		Validator:  validator,
		History:    hist,
		Registry:   app.Registry,
		Downloader: image.NewDownloader(app.Config.StrictURLCheck),
		Settings: repl.Settings{
			Model:    app.Config.DefaultModel,
			Size:     app.Config.DefaultSize,
			Quality:  app.Config.DefaultQuality,
			Style:    app.Config.DefaultStyle,
			Quantity: 1,
			Enhance:  app.Config.AutoEnhance,
		},
	})
	return r.Run(ctx)
}

// keyProber builds a throwaway gateway per probe so any candidate key can be
// checked before it is trusted or saved.
type keyProber struct {
	app *App
}

func (p *keyProber) ValidateKey(ctx context.Context, key string) error {
	gw, err := p.app.NewGateway(key)
	if err != nil {
		return err
	}
	return gw.ValidateKey(ctx, key)
}

func progressPrinter(w io.Writer) func(studio.Snapshot) {
	var last studio.Status
	return func(s studio.Snapshot) {
		if s.Status == last {
			return
		}
		last = s.Status
		switch s.Status {
		case studio.StatusEnhancing:
			fmt.Fprintln(w, "Enhancing prompt...")
		case studio.StatusGenerating:
			fmt.Fprintln(w, "Generating...")
		}
	}
}

func newKeyCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the stored provider credential",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set [secret]",
		Short: "Validate and store a credential",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := app.setup(); err != nil {
				return err
			}
			ctx, cancel := signalContext(c.Context())
			defer cancel()

			var secret string
			if len(args) == 1 {
				secret = args[0]
			} else {
				fmt.Fprint(app.Out, "Enter API key: ")
				raw, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Fprintln(app.Out)
				if err != nil {
					return fmt.Errorf("failed to read key: %w", err)
				}
				secret = strings.TrimSpace(string(raw))
			}

			validator := credential.NewValidator(&keyProber{app: app})
			result := validator.Validate(ctx, secret)
			if !result.Valid {
				if result.Retryable {
					return fmt.Errorf("%v (key not saved, try again later)", result.Err)
				}
				return result.Err
			}

			creds, err := app.NewCreds()
			if err != nil {
				return err
			}
			if err := creds.Save(secret); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Saved credential %s.\n", credential.Mask(secret))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the stored credential (masked)",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if err := app.setup(); err != nil {
				return err
			}
			creds, err := app.NewCreds()
			if err != nil {
				return err
			}
			secret, ok := creds.Load()
			if !ok {
				fmt.Fprintln(app.Out, "No credential stored.")
				return nil
			}
			fmt.Fprintf(app.Out, "Credential: %s\n", credential.Mask(secret))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if err := app.setup(); err != nil {
				return err
			}
			creds, err := app.NewCreds()
			if err != nil {
				return err
			}
			if err := creds.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(app.Out, "Credential cleared.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the stored credential against the provider",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if err := app.setup(); err != nil {
				return err
			}
			ctx, cancel := signalContext(c.Context())
			defer cancel()

			creds, err := app.NewCreds()
			if err != nil {
				return err
			}
			secret, ok := creds.Load()
			if !ok {
				return fmt.Errorf("no credential stored: run 'imgstudio key set'")
			}

			validator := credential.NewValidator(&keyProber{app: app})
			result := validator.Validate(ctx, secret)
			if !result.Valid {
				return result.Err
			}
			fmt.Fprintln(app.Out, "Credential is valid.")
			return nil
		},
	})

	return cmd
}

func newBatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <file>",
		Short: "Generate one image per prompt from a .txt or .json file",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := app.setup(); err != nil {
				return err
			}
			ctx, cancel := signalContext(c.Context())
			defer cancel()

			items, err := batch.ParseFile(args[0])
			if err != nil {
				return err
			}

			creds, err := app.NewCreds()
			if err != nil {
				return err
			}
			hist, err := app.NewHistory()
			if err != nil {
				return err
			}
			defer hist.Close()

			orch := app.orchestrator(creds, hist, progressPrinter(app.Err))

			fmt.Fprintf(app.Out, "Running batch of %d prompt(s)...\n", len(items))
			records, err := batch.Run(ctx, orch, items, app.params(""))
			for _, rec := range records {
				fmt.Fprintf(app.Out, "[%s] %s ($%s)\n", rec.ID, rec.ImageURL, rec.Cost.StringFixed(3))
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Batch complete: %d image(s).\n", len(records))
			return nil
		},
	}
}

func newEnhanceCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "enhance <prompt>",
		Short: "Enhance a prompt without generating",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := app.setup(); err != nil {
				return err
			}
			ctx, cancel := signalContext(c.Context())
			defer cancel()

			creds, err := app.NewCreds()
			if err != nil {
				return err
			}
			hist, err := app.NewHistory()
			if err != nil {
				return err
			}
			defer hist.Close()

			orch := app.orchestrator(creds, hist, nil)
			fmt.Fprintln(app.Out, orch.EnhancePromptOnly(ctx, args[0]))
			return nil
		},
	}
}

func newHistoryCmd(app *App) *cobra.Command {
	var flagLimit int
	var flagFavorites bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded generations",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if err := app.setup(); err != nil {
				return err
			}
			hist, err := app.NewHistory()
			if err != nil {
				return err
			}
			defer hist.Close()

			ctx := c.Context()
			var records []*history.Record
			if flagFavorites {
				records, err = hist.ListFavorites(ctx)
			} else {
				records, err = hist.List(ctx, flagLimit)
			}
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(app.Out, "History is empty.")
				return nil
			}

			for _, rec := range records {
				star := " "
				if rec.Favorite {
					star = "*"
				}
				fmt.Fprintf(app.Out, "%s %s  %s %s  $%s  %s\n",
					star, rec.ID, rec.Model, rec.Size,
					rec.Cost.StringFixed(3), rec.CreatedAt.Format("2006-01-02 15:04:05"))
				fmt.Fprintf(app.Out, "    %s\n", rec.OriginalPrompt)
			}

			total, err := hist.TotalSpend(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Total spend: $%s\n", total.StringFixed(3))
			return nil
		},
	}

	cmd.Flags().IntVar(&flagLimit, "limit", 20, "maximum records to list")
	cmd.Flags().BoolVar(&flagFavorites, "favorites", false, "only list favorites")

	cmd.AddCommand(&cobra.Command{
		Use:   "favorite <record-id>",
		Short: "Toggle a record's favorite flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := app.setup(); err != nil {
				return err
			}
			hist, err := app.NewHistory()
			if err != nil {
				return err
			}
			defer hist.Close()

			favorite, err := hist.ToggleFavorite(c.Context(), args[0])
			if err != nil {
				return err
			}
			if favorite {
				fmt.Fprintln(app.Out, "Favorited.")
			} else {
				fmt.Fprintln(app.Out, "Unfavorited.")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <record-id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := app.setup(); err != nil {
				return err
			}
			hist, err := app.NewHistory()
			if err != nil {
				return err
			}
			defer hist.Close()

			if err := hist.Remove(c.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(app.Out, "Deleted.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "export <file>",
		Short: "Export history as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := app.setup(); err != nil {
				return err
			}
			hist, err := app.NewHistory()
			if err != nil {
				return err
			}
			defer hist.Close()

			file, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			defer file.Close()

			if err := hist.ExportAll(c.Context(), file); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Exported history to %s.\n", args[0])
			return nil
		},
	})

	return cmd
}

func newPriceCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "price",
		Short: "Show the cost estimate for the given flags",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			if err := app.setup(); err != nil {
				return err
			}

			p := app.params("estimate")
			caps, ok := app.Registry.Get(p.Model)
			if !ok {
				return fmt.Errorf("unknown model %q: available models: %v", p.Model, app.Registry.List())
			}
			caps.ApplyDefaults(p)
			caps.ClampQuantity(p)

			estimate := pricing.EstimateCost(p.Model, p.Size, p.Quality, p.Quantity)
			fmt.Fprintf(app.Out, "%s %s", p.Model, p.Size)
			if p.Quality != "" {
				fmt.Fprintf(app.Out, " %s", p.Quality)
			}
			fmt.Fprintf(app.Out, ": $%s per image, $%s for %d image(s)\n",
				estimate.PerImage.StringFixed(3), estimate.Total.StringFixed(3), p.Quantity)
			return nil
		},
	}
}
