// Package emailguess builds likely first.last addresses for suggested
// contacts and checks that their domains accept mail.
package emailguess

import (
	"context"
	"errors"
	"net"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
)

var nonLocalRe = regexp.MustCompile(`[^a-z0-9]`)

var honorifics = map[string]struct{}{
	"dr": {}, "mr": {}, "mrs": {}, "ms": {}, "miss": {}, "prof": {},
}

// Generate returns "first.last@domain" for name, or "" when either part is
// missing. Single-word names produce "first@domain".
func Generate(name, domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return ""
	}
	var parts []string
	for _, f := range strings.Fields(name) {
		p := nonLocalRe.ReplaceAllString(strings.ToLower(f), "")
		if p == "" {
			continue
		}
		if _, ok := honorifics[p]; ok && len(parts) == 0 {
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return ""
	}
	local := parts[0]
	if len(parts) > 1 {
		local += "." + parts[len(parts)-1]
	}
	return local + "@" + domain
}

// Domain extracts the mail domain from a website URL, dropping scheme, port,
// path and a leading "www.".
func Domain(website string) string {
	website = strings.TrimSpace(website)
	if website == "" {
		return ""
	}
	if !strings.Contains(website, "://") {
		website = "http://" + website
	}
	u, err := url.Parse(website)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// MXChecker reports whether a domain publishes MX records.
type MXChecker interface {
	HasMX(ctx context.Context, domain string) (bool, error)
}

var DefaultResolvers = []string{"8.8.8.8:53", "1.1.1.1:53"}

// DNSChecker queries resolvers in order until one answers.
type DNSChecker struct {
	servers []string
	client  *dns.Client
}

func NewDNSChecker(timeout time.Duration, servers ...string) *DNSChecker {
	if len(servers) == 0 {
		servers = DefaultResolvers
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DNSChecker{servers: servers, client: &dns.Client{Timeout: timeout}}
}

func (c *DNSChecker) HasMX(ctx context.Context, domain string) (bool, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return false, errors.New("empty domain")
	}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range c.servers {
		resp, _, err := c.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			continue
		}
		if resp.Rcode == dns.RcodeNameError {
			return false, nil
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = errors.New(dns.RcodeToString[resp.Rcode])
			continue
		}
		for _, rr := range resp.Answer {
			if _, ok := rr.(*dns.MX); ok {
				return true, nil
			}
		}
		return false, nil
	}
	return false, lastErr
}

// Guesser turns a suggested contact name into an address on the business's
// domain, keeping it only when the domain accepts mail. MX answers are cached
// per domain for the lifetime of the Guesser.
type Guesser struct {
	mx MXChecker

	mu    sync.Mutex
	cache map[string]bool
}

func NewGuesser(mx MXChecker) *Guesser {
	return &Guesser{mx: mx, cache: map[string]bool{}}
}

// Guess returns the likely address or "" when none can be trusted.
func (g *Guesser) Guess(ctx context.Context, name, website string) string {
	domain := Domain(website)
	if net.ParseIP(domain) != nil {
		return ""
	}
	addr := Generate(name, domain)
	if addr == "" {
		return ""
	}
	if g == nil || g.mx == nil {
		return addr
	}

	g.mu.Lock()
	ok, cached := g.cache[domain]
	g.mu.Unlock()
	if !cached {
		var err error
		ok, err = g.mx.HasMX(ctx, domain)
		if err != nil {
			return ""
		}
		g.mu.Lock()
		g.cache[domain] = ok
		g.mu.Unlock()
	}
	if !ok {
		return ""
	}
	return addr
}
