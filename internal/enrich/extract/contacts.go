package extract

import (
	"strings"

	"github.com/shpitdev/leadfinder/internal/enrich"
)

// Contacts runs all three passes over d, filters their union through the
// shared validator, and drops repeated (name, role) pairs. Order is
// structural, then image, then line candidates.
func Contacts(d *Document, roles []string) []enrich.Candidate {
	if d == nil {
		return nil
	}
	v := validator{roles: newRoleMatcher(roles)}

	var all []enrich.Candidate
	all = append(all, StructuralCandidates(d, roles)...)
	all = append(all, ImageCandidates(d, roles)...)
	all = append(all, LineCandidates(d, roles)...)

	type key struct{ name, role string }
	seen := make(map[key]struct{}, len(all))
	var out []enrich.Candidate
	for _, c := range all {
		c.Name = strings.TrimSpace(c.Name)
		c.Role = strings.TrimSpace(c.Role)
		if !v.valid(c) {
			continue
		}
		k := key{strings.ToLower(c.Name), strings.ToLower(c.Role)}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}
