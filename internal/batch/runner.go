package batch

import (
	"context"
	"fmt"

	"github.com/manash/imgstudio/internal/history"
	"github.com/manash/imgstudio/internal/studio"
	"github.com/manash/imgstudio/pkg/models"
)

// Run drives one orchestration per item. The batch stops at the first failing
// item; records from earlier items stay persisted.
func Run(ctx context.Context, orch *studio.Orchestrator, items []Item, shared *models.GenerationParams) ([]*history.Record, error) {
	var all []*history.Record

	for _, item := range items {
		records, err := orch.Generate(ctx, item.Params(shared))
		all = append(all, records...)
		if err != nil {
			return all, fmt.Errorf("item %d (%q): %w", item.Index, item.Prompt, err)
		}
	}

	return all, nil
}
