package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/manash/imgstudio/pkg/models"
)

// Item is one prompt parsed from a batch file. JSON items may override the
// shared generation settings per prompt; a nil Enhance means "use the shared
// setting".
type Item struct {
	Index   int
	Prompt  string
	Model   string
	Size    string
	Quality string
	Style   string
	Enhance *bool
}

// Params merges the item onto the shared settings, producing the request for
// this prompt. Batch items always generate a single image.
func (it Item) Params(shared *models.GenerationParams) *models.GenerationParams {
	p := *shared
	p.Prompt = it.Prompt
	p.Quantity = 1
	if it.Model != "" {
		p.Model = it.Model
	}
	if it.Size != "" {
		p.Size = it.Size
	}
	if it.Quality != "" {
		p.Quality = it.Quality
	}
	if it.Style != "" {
		p.Style = it.Style
	}
	if it.Enhance != nil {
		p.EnhancePrompt = *it.Enhance
	}
	return &p
}

type jsonItem struct {
	Prompt  string `json:"prompt"`
	Model   string `json:"model,omitempty"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
	Style   string `json:"style,omitempty"`
	Enhance *bool  `json:"enhance,omitempty"`
}

func ParseFile(path string) ([]Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return ParseJSON(file)
	case ".txt", "":
		return ParseText(file)
	default:
		return nil, fmt.Errorf("unsupported file format %q: use .txt or .json", ext)
	}
}

// ParseText reads one prompt per line, skipping blanks and # comments. Text
// items carry no overrides; everything comes from the shared settings.
func ParseText(r io.Reader) ([]Item, error) {
	var items []Item
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, Item{
			Index:  len(items) + 1,
			Prompt: line,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("no prompts found in file")
	}

	return items, nil
}

// ParseJSON reads an array of items with optional per-item overrides for
// model, size, quality, style, and prompt enhancement.
func ParseJSON(r io.Reader) ([]Item, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var jsonItems []jsonItem
	if err := json.Unmarshal(data, &jsonItems); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if len(jsonItems) == 0 {
		return nil, fmt.Errorf("no prompts found in file")
	}

	items := make([]Item, len(jsonItems))
	for i, ji := range jsonItems {
		if strings.TrimSpace(ji.Prompt) == "" {
			return nil, fmt.Errorf("item %d has empty prompt", i+1)
		}
		items[i] = Item{
			Index:   i + 1,
			Prompt:  ji.Prompt,
			Model:   ji.Model,
			Size:    ji.Size,
			Quality: ji.Quality,
			Style:   ji.Style,
			Enhance: ji.Enhance,
		}
	}

	return items, nil
}
