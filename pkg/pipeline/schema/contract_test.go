package schema_test

import (
	"strings"
	"testing"

	"github.com/shpitdev/leadfinder/pkg/pipeline/schema"
)

func TestNormalizeFormat(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want schema.Format
	}{
		{name: "csv default", in: "", want: schema.FormatCSV},
		{name: "csv explicit", in: "csv", want: schema.FormatCSV},
		{name: "jsonl", in: "jsonl", want: schema.FormatJSONL},
		{name: "ndjson", in: " NDJSON ", want: schema.FormatJSONL},
		{name: "unknown", in: "xlsx", want: schema.FormatCSV},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := schema.NormalizeFormat(tt.in); got != tt.want {
				t.Fatalf("NormalizeFormat(%q)=%q want=%q", tt.in, got, tt.want)
			}
		})
	}
}

func TestContract_CheckHeader(t *testing.T) {
	t.Parallel()

	c := schema.Contract{Fields: []schema.Field{
		{Name: "Business Name", Type: "string"},
		{Name: "Website", Type: "string"},
		{Name: "AI Contact", Type: "string", Nullable: true},
	}}

	if err := c.CheckHeader([]string{"Website", "Business Name", "Extra"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := c.CheckHeader([]string{"Business Name"})
	if err == nil || !strings.Contains(err.Error(), "Website") {
		t.Fatalf("expected missing Website error, got %v", err)
	}
	if got := c.Index()["Website"]; got != 1 {
		t.Fatalf("Index()[Website]=%d want=1", got)
	}
}
