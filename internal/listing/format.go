package listing

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dyluth/deck/pkg/deck"
)

// FormatTable writes summaries as a table with ID, AGE and TITLE columns.
// Returns the number of rows written.
func FormatTable(w io.Writer, summaries []deck.Summary, instanceName string, now time.Time) int {
	if len(summaries) == 0 {
		fmt.Fprintf(w, "No presentations found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Presentations for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-10s %-8s %s\n", "ID", "AGE", "TITLE")
	fmt.Fprintf(w, "%-10s %-8s %s\n", "----------", "--------", "----------------------------------------")

	for _, s := range summaries {
		fmt.Fprintf(w, "%-10s %-8s %s\n",
			formatID(s.ID),
			formatAge(s.CreatedAtMs, now),
			formatTitle(s.Title),
		)
	}

	noun := "presentation"
	if len(summaries) != 1 {
		noun = "presentations"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(summaries), noun)

	return len(summaries)
}

// FormatJSONL writes one compact JSON object per line, for piping into jq.
func FormatJSONL(w io.Writer, summaries []deck.Summary) error {
	enc := json.NewEncoder(w)
	for _, s := range summaries {
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatDocumentJSON writes a whole document as indented JSON.
func FormatDocumentJSON(w io.Writer, doc *deck.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document to JSON: %w", err)
	}

	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	return nil
}

// FormatOutline writes a human summary of a document: its participants and
// each slide's elements by type.
func FormatOutline(w io.Writer, doc *deck.Document, now time.Time) {
	fmt.Fprintf(w, "%s\n", doc.Title)
	fmt.Fprintf(w, "  id:      %s\n", doc.ID)
	fmt.Fprintf(w, "  created: %s\n", formatAge(doc.CreatedAtMs, now))
	fmt.Fprintf(w, "  version: %d\n", doc.Version)

	fmt.Fprintf(w, "\nParticipants (%d):\n", len(doc.Users))
	for _, u := range doc.Users {
		if u == nil {
			continue
		}
		fmt.Fprintf(w, "  %-20s %-7s %s\n", u.Nickname, u.Role, formatID(u.ID))
	}

	fmt.Fprintf(w, "\nSlides (%d):\n", doc.SlideCount())
	for i, s := range doc.Slides {
		if s == nil {
			continue
		}
		fmt.Fprintf(w, "  %2d. %s\n", i+1, describeElements(s.Elements))
	}
}

// describeElements summarizes elements as "2 text, 1 image", or "empty".
func describeElements(elements []deck.Element) string {
	if len(elements) == 0 {
		return "empty"
	}

	counts := make(map[deck.ElementType]int)
	for _, el := range elements {
		counts[el.Type]++
	}

	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)

	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = fmt.Sprintf("%d %s", counts[deck.ElementType(t)], t)
	}
	return strings.Join(parts, ", ")
}

// formatID truncates an id to its first 8 characters.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatTitle keeps titles to one line of at most 40 characters.
func formatTitle(title string) string {
	title = strings.TrimSpace(strings.SplitN(title, "\n", 2)[0])
	if title == "" {
		return "-"
	}
	if len([]rune(title)) > 40 {
		return string([]rune(title)[:37]) + "..."
	}
	return title
}

// formatAge renders a millisecond timestamp relative to now, like "2m ago".
func formatAge(timestampMs int64, now time.Time) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := now.Sub(time.UnixMilli(timestampMs))
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
