package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var genericLocalParts = []string{"info", "contact", "support", "hello", "admin"}

// BusinessEmail returns the first role-style address (info@, contact@, ...)
// found in the page's visible text, its mailto links, or mailto targets in the
// raw HTML. It returns "" rather than guess a personal address.
func BusinessEmail(d *Document) string {
	if d == nil {
		return ""
	}
	for _, e := range AllEmails(d) {
		local, _, _ := strings.Cut(e, "@")
		for _, g := range genericLocalParts {
			if strings.Contains(local, g) {
				return e
			}
		}
	}
	return ""
}

// AllEmails is the de-duplicated union of addresses in visible text, mailto
// hrefs, and mailto targets in the raw source, lower-cased, in first-seen
// order.
func AllEmails(d *Document) []string {
	if d == nil {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	add := func(e string) {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || !emailRe.MatchString(e) || !usableEmail(e) {
			return
		}
		if _, ok := seen[e]; ok {
			return
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}

	for _, e := range Emails(d.Text()) {
		add(e)
	}
	if d.doc != nil {
		d.doc.Find(`a[href]`).Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			if e, ok := mailtoAddress(href); ok {
				add(e)
			}
		})
	}
	for _, m := range mailtoRe.FindAllStringSubmatch(d.HTML, -1) {
		if e, ok := mailtoAddress("mailto:" + m[1]); ok {
			add(e)
		}
	}
	return out
}

func mailtoAddress(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if len(href) < len("mailto:") || !strings.EqualFold(href[:len("mailto:")], "mailto:") {
		return "", false
	}
	addr := href[len("mailto:"):]
	addr, _, _ = strings.Cut(addr, "?")
	if un, err := url.PathUnescape(addr); err == nil {
		addr = un
	}
	// "mailto:a@x.com,b@x.com" lists several recipients; keep the first.
	addr, _, _ = strings.Cut(addr, ",")
	addr = strings.TrimSpace(addr)
	return addr, addr != ""
}
