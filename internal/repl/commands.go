package repl

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/manash/imgstudio/internal/batch"
	"github.com/manash/imgstudio/internal/credential"
	"github.com/manash/imgstudio/internal/history"
	"github.com/manash/imgstudio/internal/image"
	"github.com/manash/imgstudio/internal/pricing"
)

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	Execute(ctx context.Context, r *REPL, args []string) error
}

func (r *REPL) registerCommands() {
	commands := []Command{
		&GenerateCommand{},
		&BatchCommand{},
		&EnhanceCommand{},
		&HistoryCommand{},
		&FavoritesCommand{},
		&FavoriteCommand{},
		&DeleteCommand{},
		&ExportCommand{},
		&DownloadCommand{},
		&KeyCommand{},
		&PriceCommand{},
		&ModelCommand{},
		&SetCommand{},
		&SettingsCommand{},
		&SpendCommand{},
		&HelpCommand{},
		&QuitCommand{},
	}

	for _, cmd := range commands {
		r.commands[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			r.commands[alias] = cmd
		}
	}
}

// GenerateCommand runs one generation with the sticky settings.
type GenerateCommand struct{}

func (c *GenerateCommand) Name() string        { return "generate" }
func (c *GenerateCommand) Aliases() []string   { return []string{"gen", "g"} }
func (c *GenerateCommand) Description() string { return "Generate images from a prompt" }
func (c *GenerateCommand) Usage() string       { return "generate <prompt>" }

func (c *GenerateCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	prompt := strings.Join(args, " ")
	params := r.params(prompt)

	estimate := pricing.EstimateCost(params.Model, params.Size, params.Quality, params.Quantity)
	fmt.Fprintf(r.out, "Generating %d image(s) with %s (est. $%s)...\n",
		params.Quantity, params.Model, estimate.Total.StringFixed(3))

	records, err := r.orch.Generate(ctx, params)
	for _, rec := range records {
		printRecord(r, rec)
	}
	if err != nil {
		if len(records) > 0 {
			fmt.Fprintf(r.err, "Stopped after %d image(s); earlier results are kept in history.\n", len(records))
		}
		return err
	}

	fmt.Fprintln(r.out, "Done!")
	return nil
}

// BatchCommand generates one image per prompt from a batch file.
type BatchCommand struct{}

func (c *BatchCommand) Name() string        { return "batch" }
func (c *BatchCommand) Aliases() []string   { return []string{"b"} }
func (c *BatchCommand) Description() string { return "Generate one image per prompt from a file" }
func (c *BatchCommand) Usage() string       { return "batch <file.txt|file.json>" }

func (c *BatchCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	items, err := batch.ParseFile(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Running batch of %d prompt(s)...\n", len(items))

	shared := r.params("")
	records, err := batch.Run(ctx, r.orch, items, shared)
	for _, rec := range records {
		printRecord(r, rec)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Batch complete: %d image(s).\n", len(records))
	return nil
}

// EnhanceCommand shows what the prompt enhancer would produce, without
// generating anything.
type EnhanceCommand struct{}

func (c *EnhanceCommand) Name() string        { return "enhance" }
func (c *EnhanceCommand) Aliases() []string   { return []string{"e"} }
func (c *EnhanceCommand) Description() string { return "Enhance a prompt without generating" }
func (c *EnhanceCommand) Usage() string       { return "enhance <prompt>" }

func (c *EnhanceCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	prompt := strings.Join(args, " ")
	enhanced := r.orch.EnhancePromptOnly(ctx, prompt)
	if enhanced == prompt {
		fmt.Fprintln(r.out, "Prompt unchanged.")
		return nil
	}
	fmt.Fprintf(r.out, "Enhanced: %s\n", enhanced)
	return nil
}

// HistoryCommand lists recent records.
type HistoryCommand struct{}

func (c *HistoryCommand) Name() string        { return "history" }
func (c *HistoryCommand) Aliases() []string   { return []string{"h", "ls"} }
func (c *HistoryCommand) Description() string { return "List recent generations" }
func (c *HistoryCommand) Usage() string       { return "history [count]" }

func (c *HistoryCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	limit := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("usage: %s", c.Usage())
		}
		limit = n
	}

	records, err := r.hist.List(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(r.out, "History is empty.")
		return nil
	}

	for _, rec := range records {
		printRecordLine(r, rec)
	}

	total, err := r.hist.TotalSpend(ctx)
	if err != nil {
		return err
	}
	count, err := r.hist.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%d record(s) total, $%s spent.\n", count, total.StringFixed(3))
	return nil
}

// FavoritesCommand lists favorite records.
type FavoritesCommand struct{}

func (c *FavoritesCommand) Name() string        { return "favorites" }
func (c *FavoritesCommand) Aliases() []string   { return []string{"favs"} }
func (c *FavoritesCommand) Description() string { return "List favorite generations" }
func (c *FavoritesCommand) Usage() string       { return "favorites" }

func (c *FavoritesCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	records, err := r.hist.ListFavorites(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(r.out, "No favorites yet.")
		return nil
	}
	for _, rec := range records {
		printRecordLine(r, rec)
	}
	return nil
}

// FavoriteCommand toggles a record's favorite flag.
type FavoriteCommand struct{}

func (c *FavoriteCommand) Name() string        { return "favorite" }
func (c *FavoriteCommand) Aliases() []string   { return []string{"fav"} }
func (c *FavoriteCommand) Description() string { return "Toggle a record's favorite flag" }
func (c *FavoriteCommand) Usage() string       { return "favorite <record-id>" }

func (c *FavoriteCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	id, err := resolveRecordID(ctx, r, args[0])
	if err != nil {
		return err
	}

	favorite, err := r.hist.ToggleFavorite(ctx, id)
	if err != nil {
		return err
	}
	if favorite {
		fmt.Fprintf(r.out, "Favorited %s.\n", shortID(id))
	} else {
		fmt.Fprintf(r.out, "Unfavorited %s.\n", shortID(id))
	}
	return nil
}

// DeleteCommand removes a record.
type DeleteCommand struct{}

func (c *DeleteCommand) Name() string        { return "delete" }
func (c *DeleteCommand) Aliases() []string   { return []string{"rm"} }
func (c *DeleteCommand) Description() string { return "Delete a record from history" }
func (c *DeleteCommand) Usage() string       { return "delete <record-id>" }

func (c *DeleteCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	id, err := resolveRecordID(ctx, r, args[0])
	if err != nil {
		return err
	}

	if err := r.hist.Remove(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Deleted %s.\n", shortID(id))
	return nil
}

// ExportCommand writes a JSON snapshot of the history.
type ExportCommand struct{}

func (c *ExportCommand) Name() string        { return "export" }
func (c *ExportCommand) Aliases() []string   { return nil }
func (c *ExportCommand) Description() string { return "Export history as JSON" }
func (c *ExportCommand) Usage() string       { return "export <file>" }

func (c *ExportCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	file, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if err := r.hist.ExportAll(ctx, file); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Exported history to %s.\n", args[0])
	return nil
}

// DownloadCommand fetches a record's image to disk.
type DownloadCommand struct{}

func (c *DownloadCommand) Name() string        { return "download" }
func (c *DownloadCommand) Aliases() []string   { return []string{"dl"} }
func (c *DownloadCommand) Description() string { return "Download a record's image" }
func (c *DownloadCommand) Usage() string       { return "download <record-id> [path]" }

func (c *DownloadCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	id, err := resolveRecordID(ctx, r, args[0])
	if err != nil {
		return err
	}

	rec, err := r.hist.Get(ctx, id)
	if err != nil {
		return err
	}

	path := image.DefaultFilename(rec.ID, rec.CreatedAt)
	if len(args) == 2 {
		path = args[1]
	}

	n, err := r.downloader.Download(ctx, rec.ImageURL, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Saved %s (%s).\n", path, humanize.Bytes(uint64(n)))
	return nil
}

// KeyCommand manages the provider credential.
type KeyCommand struct{}

func (c *KeyCommand) Name() string        { return "key" }
func (c *KeyCommand) Aliases() []string   { return nil }
func (c *KeyCommand) Description() string { return "Manage the provider credential" }
func (c *KeyCommand) Usage() string       { return "key set <secret> | show | clear | validate" }

func (c *KeyCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	switch args[0] {
	case "set":
		if len(args) != 2 {
			return fmt.Errorf("usage: key set <secret>")
		}
		secret := args[1]
		result := r.validator.Validate(ctx, secret)
		if !result.Valid {
			if result.Retryable {
				return fmt.Errorf("%v (key not saved, try again later)", result.Err)
			}
			return result.Err
		}
		if err := r.creds.Save(secret); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Saved credential %s.\n", credential.Mask(secret))
		return nil

	case "show":
		secret, ok := r.creds.Load()
		if !ok {
			fmt.Fprintln(r.out, "No credential stored.")
			return nil
		}
		fmt.Fprintf(r.out, "Credential: %s\n", credential.Mask(secret))
		return nil

	case "clear":
		if err := r.creds.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "Credential cleared.")
		return nil

	case "validate":
		secret, ok := r.creds.Load()
		if !ok {
			return fmt.Errorf("no credential stored")
		}
		result := r.validator.Validate(ctx, secret)
		if result.Valid {
			fmt.Fprintln(r.out, "Credential is valid.")
			return nil
		}
		if result.Retryable {
			return fmt.Errorf("%v (try again later)", result.Err)
		}
		return result.Err

	default:
		return fmt.Errorf("usage: %s", c.Usage())
	}
}

// PriceCommand shows the cost estimate for the current settings.
type PriceCommand struct{}

func (c *PriceCommand) Name() string        { return "price" }
func (c *PriceCommand) Aliases() []string   { return nil }
func (c *PriceCommand) Description() string { return "Show the cost estimate for current settings" }
func (c *PriceCommand) Usage() string       { return "price" }

func (c *PriceCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	params := r.params("estimate")
	caps, ok := r.registry.Get(params.Model)
	if ok {
		caps.ApplyDefaults(params)
		caps.ClampQuantity(params)
	}

	estimate := pricing.EstimateCost(params.Model, params.Size, params.Quality, params.Quantity)
	fmt.Fprintf(r.out, "%s %s", params.Model, params.Size)
	if params.Quality != "" {
		fmt.Fprintf(r.out, " %s", params.Quality)
	}
	fmt.Fprintf(r.out, ": $%s per image, $%s for %d image(s).\n",
		estimate.PerImage.StringFixed(3), estimate.Total.StringFixed(3), params.Quantity)
	return nil
}

// ModelCommand shows or switches the active model.
type ModelCommand struct{}

func (c *ModelCommand) Name() string        { return "model" }
func (c *ModelCommand) Aliases() []string   { return []string{"m"} }
func (c *ModelCommand) Description() string { return "Show or switch the active model" }
func (c *ModelCommand) Usage() string       { return "model [name]" }

func (c *ModelCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(r.out, "Current model: %s (available: %s)\n",
			r.settings.Model, strings.Join(r.registry.List(), ", "))
		return nil
	}

	name := args[0]
	caps, ok := r.registry.Get(name)
	if !ok {
		return fmt.Errorf("unknown model %q: available models: %v", name, r.registry.List())
	}

	r.settings.Model = name
	// Size/quality/style carry over only if the new model accepts them.
	if r.settings.Size != "" {
		valid := false
		for _, s := range caps.SupportedSizes {
			if s == r.settings.Size {
				valid = true
				break
			}
		}
		if !valid {
			r.settings.Size = ""
		}
	}
	if !caps.SupportsQuality {
		r.settings.Quality = ""
	}
	if !caps.SupportsStyle {
		r.settings.Style = ""
	}
	if r.settings.Quantity > caps.MaxImages {
		r.settings.Quantity = caps.MaxImages
	}

	fmt.Fprintf(r.out, "Switched to %s.\n", name)
	return nil
}

// SetCommand adjusts one sticky setting.
type SetCommand struct{}

func (c *SetCommand) Name() string        { return "set" }
func (c *SetCommand) Aliases() []string   { return nil }
func (c *SetCommand) Description() string { return "Adjust a generation setting" }
func (c *SetCommand) Usage() string       { return "set size|quality|style|quantity|enhance <value>" }

func (c *SetCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	key, value := args[0], args[1]
	switch key {
	case "size":
		r.settings.Size = value
	case "quality":
		r.settings.Quality = value
	case "style":
		r.settings.Style = value
	case "quantity":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("quantity must be a positive integer")
		}
		r.settings.Quantity = n
	case "enhance":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("enhance must be true or false")
		}
		r.settings.Enhance = b
	default:
		return fmt.Errorf("usage: %s", c.Usage())
	}

	fmt.Fprintf(r.out, "Set %s to %s.\n", key, value)
	return nil
}

// SettingsCommand prints the sticky settings.
type SettingsCommand struct{}

func (c *SettingsCommand) Name() string        { return "settings" }
func (c *SettingsCommand) Aliases() []string   { return nil }
func (c *SettingsCommand) Description() string { return "Show current settings" }
func (c *SettingsCommand) Usage() string       { return "settings" }

func (c *SettingsCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	s := r.settings
	fmt.Fprintf(r.out, "model:    %s\n", s.Model)
	fmt.Fprintf(r.out, "size:     %s\n", orDefault(s.Size))
	fmt.Fprintf(r.out, "quality:  %s\n", orDefault(s.Quality))
	fmt.Fprintf(r.out, "style:    %s\n", orDefault(s.Style))
	fmt.Fprintf(r.out, "quantity: %d\n", s.Quantity)
	fmt.Fprintf(r.out, "enhance:  %t\n", s.Enhance)
	return nil
}

// SpendCommand reports the total recorded spend.
type SpendCommand struct{}

func (c *SpendCommand) Name() string        { return "spend" }
func (c *SpendCommand) Aliases() []string   { return []string{"cost"} }
func (c *SpendCommand) Description() string { return "Show total spend across history" }
func (c *SpendCommand) Usage() string       { return "spend" }

func (c *SpendCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	total, err := r.hist.TotalSpend(ctx)
	if err != nil {
		return err
	}
	count, err := r.hist.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Total: $%s across %d image(s).\n", total.StringFixed(3), count)
	return nil
}

// HelpCommand lists commands.
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"?"} }
func (c *HelpCommand) Description() string { return "Show available commands" }
func (c *HelpCommand) Usage() string       { return "help" }

func (c *HelpCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	seen := make(map[string]bool)
	var names []string
	for _, cmd := range r.commands {
		if !seen[cmd.Name()] {
			seen[cmd.Name()] = true
			names = append(names, cmd.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		cmd := r.commands[name]
		fmt.Fprintf(r.out, "  %-12s %s\n", cmd.Usage(), cmd.Description())
	}
	return nil
}

// QuitCommand exits the loop.
type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Aliases() []string   { return []string{"exit", "q"} }
func (c *QuitCommand) Description() string { return "Exit interactive mode" }
func (c *QuitCommand) Usage() string       { return "quit" }

func (c *QuitCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	r.Stop()
	fmt.Fprintln(r.out, "Bye!")
	return nil
}

func printRecord(r *REPL, rec *history.Record) {
	fmt.Fprintf(r.out, "[%s] %s ($%s)\n", shortID(rec.ID), rec.ImageURL, rec.Cost.StringFixed(3))
	if rec.RevisedPrompt != "" && rec.RevisedPrompt != rec.Prompt {
		fmt.Fprintf(r.out, "  revised: %s\n", rec.RevisedPrompt)
	}
}

func printRecordLine(r *REPL, rec *history.Record) {
	star := " "
	if rec.Favorite {
		star = "*"
	}
	fmt.Fprintf(r.out, "%s [%s] %s  %s %s  $%s  %s\n",
		star, shortID(rec.ID), truncate(rec.OriginalPrompt, 40),
		rec.Model, rec.Size, rec.Cost.StringFixed(3),
		humanize.Time(rec.CreatedAt))
}

// resolveRecordID accepts a full record id or an unambiguous prefix.
func resolveRecordID(ctx context.Context, r *REPL, id string) (string, error) {
	records, err := r.hist.List(ctx, 0)
	if err != nil {
		return "", err
	}

	var match string
	for _, rec := range records {
		if rec.ID == id {
			return id, nil
		}
		if strings.HasPrefix(rec.ID, id) {
			if match != "" {
				return "", fmt.Errorf("ambiguous record id %q", id)
			}
			match = rec.ID
		}
	}

	if match == "" {
		return "", history.ErrRecordNotFound
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func orDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}
