package schema

import (
	"fmt"
	"strings"
)

// Format selects how output rows are serialized.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// Field describes one output column.
type Field struct {
	Name     string
	Type     string
	Nullable bool
}

// Contract is the logical column contract shared by every output writer.
type Contract struct {
	Format Format
	Fields []Field
}

func NormalizeFormat(raw string) Format {
	s := strings.TrimSpace(strings.ToLower(raw))
	switch s {
	case "jsonl", "ndjson", "json":
		return FormatJSONL
	default:
		return FormatCSV
	}
}

// Names returns the column names in contract order.
func (c Contract) Names() []string {
	out := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		out = append(out, f.Name)
	}
	return out
}

// Index maps column names to their position.
func (c Contract) Index() map[string]int {
	out := make(map[string]int, len(c.Fields))
	for i, f := range c.Fields {
		out[f.Name] = i
	}
	return out
}

// CheckHeader verifies that header contains every non-nullable column of the
// contract. Extra columns are ignored so older output files stay readable.
func (c Contract) CheckHeader(header []string) error {
	seen := make(map[string]struct{}, len(header))
	for _, h := range header {
		seen[strings.TrimSpace(h)] = struct{}{}
	}
	var missing []string
	for _, f := range c.Fields {
		if f.Nullable {
			continue
		}
		if _, ok := seen[f.Name]; !ok {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
