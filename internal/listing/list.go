// Package listing renders presentations for the CLI.
package listing

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dyluth/deck/internal/timespec"
	"github.com/dyluth/deck/pkg/deck"
)

// OutputFormat specifies how to format list output.
type OutputFormat string

const (
	// OutputFormatDefault is a table with truncated titles
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs one summary per line as JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseOutputFormat validates an --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSONL:
		return OutputFormat(s), nil
	case "":
		return OutputFormatDefault, nil
	default:
		return "", fmt.Errorf("unknown output format: %s (must be 'default' or 'jsonl')", s)
	}
}

// Lister is the part of a deck store listing needs.
type Lister interface {
	List(ctx context.Context) ([]deck.Summary, error)
}

// FilterCriteria narrows a listing. All filters are ANDed together.
type FilterCriteria struct {
	Window    timespec.Window // Creation time range, zero = no filter
	TitleGlob string          // Case-insensitive glob on the title, empty = no filter
}

func (fc *FilterCriteria) matches(s deck.Summary) bool {
	if !fc.Window.Contains(s.CreatedAtMs) {
		return false
	}
	if fc.TitleGlob != "" {
		matched, err := filepath.Match(strings.ToLower(fc.TitleGlob), strings.ToLower(s.Title))
		if err != nil || !matched {
			return false
		}
	}
	return true
}

// ListDocuments writes every matching presentation, oldest first.
func ListDocuments(ctx context.Context, lister Lister, instanceName string, format OutputFormat, filters *FilterCriteria, w io.Writer) error {
	if filters != nil && filters.TitleGlob != "" {
		if _, err := filepath.Match(filters.TitleGlob, ""); err != nil {
			return fmt.Errorf("invalid title pattern %q: %w", filters.TitleGlob, err)
		}
	}

	all, err := lister.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list presentations: %w", err)
	}

	summaries := make([]deck.Summary, 0, len(all))
	for _, s := range all {
		if filters == nil || filters.matches(s) {
			summaries = append(summaries, s)
		}
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].CreatedAtMs < summaries[j].CreatedAtMs
	})

	switch format {
	case OutputFormatDefault:
		FormatTable(w, summaries, instanceName, time.Now())
	case OutputFormatJSONL:
		if err := FormatJSONL(w, summaries); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
