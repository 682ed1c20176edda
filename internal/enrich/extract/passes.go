package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/shpitdev/leadfinder/internal/enrich"
)

const structuralSelector = "p, span, div, li, td, h1, h2, h3, h4, h5, h6, a, strong, em"

var headingAtoms = map[atom.Atom]bool{
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Strong: true, atom.B: true,
}

// StructuralCandidates pairs each short element mentioning a role with the
// nearest heading above it in document order.
func StructuralCandidates(d *Document, roles []string) []enrich.Candidate {
	if d == nil || d.doc == nil {
		return nil
	}
	rm := newRoleMatcher(roles)
	order, headings := indexNodes(d.doc.Nodes)

	var out []enrich.Candidate
	d.doc.Find(structuralSelector).Each(func(_ int, s *goquery.Selection) {
		n := s.Nodes[0]
		text := nodeText(n)
		if _, ok := rm.match(text); !ok {
			return
		}
		// Containers holding a whole bio are never a role phrase, and a card
		// that carries its own heading would pair the role with the previous
		// card's name.
		if len(strings.Fields(text)) > maxStructuralRoleWords {
			return
		}
		if s.Find("h1, h2, h3, h4, h5, h6, strong, b").Length() > 0 {
			return
		}
		idx, ok := order[n]
		if !ok {
			return
		}
		heading := precedingHeading(n, idx, headings)
		if heading == nil {
			return
		}
		name := nodeText(heading)
		if IsGenericLabel(name) {
			return
		}
		near := contactContext(n, heading)
		out = append(out, enrich.Candidate{
			Name:   cleanName(name),
			Role:   text,
			Email:  firstEmail(near),
			Phone:  Phone(near),
			Source: enrich.SourceStructural,
		})
	})
	return out
}

// pageRegions never bound a single person's card.
var pageRegions = map[atom.Atom]bool{
	atom.Html: true, atom.Body: true, atom.Main: true,
}

// siteChrome holds page-wide text such as footers and navigation.
var siteChrome = map[atom.Atom]bool{
	atom.Footer: true, atom.Header: true, atom.Nav: true, atom.Aside: true,
}

// contactContext is the text an email or phone for the person named by
// heading may be read from: the role element's parent when that parent is
// the person's own card, else the role element and its next sibling.
func contactContext(n, heading *html.Node) string {
	text := nodeText(n)
	if p := n.Parent; p != nil && p.Type == html.ElementNode && isCard(p, heading) {
		return nodeText(p)
	}
	next := n.NextSibling
	for next != nil && next.Type != html.ElementNode {
		next = next.NextSibling
	}
	if next == nil || headingAtoms[next.DataAtom] || siteChrome[next.DataAtom] || hasHeading(next, nil) {
		return text
	}
	return text + " " + nodeText(next)
}

// isCard reports whether p is a person-sized container: not a page region
// and holding no heading-like element other than the candidate's own.
func isCard(p, heading *html.Node) bool {
	if pageRegions[p.DataAtom] || siteChrome[p.DataAtom] {
		return false
	}
	return !hasHeading(p, heading)
}

// hasHeading reports whether n contains a heading-like element other than
// skip and its descendants.
func hasHeading(n, skip *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c == skip || c.Type != html.ElementNode {
			continue
		}
		if headingAtoms[c.DataAtom] || hasHeading(c, skip) {
			return true
		}
	}
	return false
}

type indexedNode struct {
	idx  int
	node *html.Node
}

// indexNodes numbers visible element nodes in pre-order and lists the
// heading-like ones.
func indexNodes(roots []*html.Node) (map[*html.Node]int, []indexedNode) {
	order := map[*html.Node]int{}
	var headings []indexedNode
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if hiddenAtoms[n.DataAtom] {
				return
			}
			i := len(order)
			order[n] = i
			if headingAtoms[n.DataAtom] {
				headings = append(headings, indexedNode{idx: i, node: n})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return order, headings
}

// precedingHeading returns the closest heading before idx that is not n or
// one of its ancestors.
func precedingHeading(n *html.Node, idx int, headings []indexedNode) *html.Node {
	for i := len(headings) - 1; i >= 0; i-- {
		h := headings[i]
		if h.idx >= idx {
			continue
		}
		if isAncestor(h.node, n) {
			continue
		}
		if nodeText(h.node) == "" {
			continue
		}
		return h.node
	}
	return nil
}

func isAncestor(a, n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == a {
			return true
		}
	}
	return false
}

// ImageCandidates reports images whose alt/title text mentions a role. The
// combined text is used as both name and role.
func ImageCandidates(d *Document, roles []string) []enrich.Candidate {
	if d == nil || d.doc == nil {
		return nil
	}
	rm := newRoleMatcher(roles)
	var out []enrich.Candidate
	d.doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		alt, _ := s.Attr("alt")
		title, _ := s.Attr("title")
		text := collapse(alt + " " + title)
		if text == "" {
			return
		}
		if _, ok := rm.match(text); !ok {
			return
		}
		out = append(out, enrich.Candidate{Name: text, Role: text, Source: enrich.SourceImage})
	})
	return out
}

// LineCandidates walks the visible text line by line and treats the line
// above a role line as the name.
func LineCandidates(d *Document, roles []string) []enrich.Candidate {
	rm := newRoleMatcher(roles)
	lines := d.Lines()
	var out []enrich.Candidate
	for i := 1; i < len(lines); i++ {
		line := lines[i]
		if _, ok := rm.match(line); !ok {
			continue
		}
		prev := lines[i-1]
		near := prev + " " + line
		out = append(out, enrich.Candidate{
			Name:   cleanName(prev),
			Role:   line,
			Email:  firstEmail(near),
			Phone:  Phone(near),
			Source: enrich.SourceLine,
		})
	}
	return out
}

// cleanName drops credentials and separators trailing a name, so
// "Jane Smith, DDS" becomes "Jane Smith".
func cleanName(s string) string {
	s = collapse(s)
	for _, sep := range []string{",", " | ", " – ", " — ", " - "} {
		if before, _, ok := strings.Cut(s, sep); ok {
			s = before
		}
	}
	return strings.TrimSpace(s)
}
