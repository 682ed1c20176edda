// Package roles selects the job-title keywords used to spot contacts on a
// business website.
package roles

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default is used when no industry keyword matches.
var Default = []string{"owner", "manager", "director"}

// builtin is the table used when no roles file is configured.
var builtin = map[string][]string{
	"dentist":      {"dds", "dentist", "owner", "practice manager", "office manager"},
	"dental":       {"dds", "dentist", "owner", "practice manager", "office manager"},
	"orthodont":    {"orthodontist", "dds", "owner", "office manager"},
	"school":       {"principal", "head of school", "superintendent", "director", "administrator"},
	"academy":      {"head of school", "principal", "director", "administrator"},
	"funeral":      {"funeral director", "owner", "manager", "president"},
	"cemetery":     {"superintendent", "manager", "director", "owner"},
	"church":       {"pastor", "reverend", "administrator", "director"},
	"law":          {"partner", "attorney", "founder", "managing partner"},
	"restaurant":   {"owner", "general manager", "chef"},
	"clinic":       {"md", "physician", "practice manager", "director"},
	"chiropract":   {"chiropractor", "dc", "owner", "office manager"},
	"veterinar":    {"dvm", "veterinarian", "practice manager", "owner"},
	"real estate":  {"broker", "realtor", "owner", "managing broker"},
	"construction": {"owner", "president", "project manager", "estimator"},
}

// Table maps lower-cased industry keywords to ordered role keywords.
type Table struct {
	keys  []string
	roles map[string][]string
}

// Builtin returns the compiled-in industry table.
func Builtin() *Table {
	return newTable(builtin)
}

// Load reads a YAML file mapping industry keyword to a list of role keywords:
//
//	dentist:
//	  - dds
//	  - practice manager
//	school: [principal, superintendent]
func Load(path string) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roles file: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Table, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse roles YAML: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("roles file defines no industries")
	}
	return newTable(raw), nil
}

func newTable(raw map[string][]string) *Table {
	t := &Table{roles: make(map[string][]string, len(raw))}
	for k, v := range raw {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		set := normalize(v)
		if len(set) == 0 {
			continue
		}
		t.keys = append(t.keys, k)
		t.roles[k] = set
	}
	// Longer keys are more specific ("real estate" before "estate"); ties sort
	// lexically so selection is stable across runs.
	sort.Slice(t.keys, func(i, j int) bool {
		if len(t.keys[i]) != len(t.keys[j]) {
			return len(t.keys[i]) > len(t.keys[j])
		}
		return t.keys[i] < t.keys[j]
	})
	return t
}

// Select returns the role set for a business. Each argument (typically the
// business name and its search category) is checked against the industry
// keys; the first match wins. The result is never empty.
func (t *Table) Select(hints ...string) []string {
	if t != nil {
		hay := strings.ToLower(strings.Join(hints, " "))
		for _, k := range t.keys {
			if strings.Contains(hay, k) {
				return append([]string(nil), t.roles[k]...)
			}
		}
	}
	return append([]string(nil), Default...)
}

func normalize(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
