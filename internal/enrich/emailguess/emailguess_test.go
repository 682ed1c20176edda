package emailguess_test

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/shpitdev/leadfinder/internal/enrich/emailguess"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, domain, want string
	}{
		{name: "Jane Smith", domain: "acme.com", want: "jane.smith@acme.com"},
		{name: "Dr. Mary O'Neil", domain: "acme.com", want: "mary.oneil@acme.com"},
		{name: "  Cher ", domain: "Acme.COM", want: "cher@acme.com"},
		{name: "", domain: "acme.com", want: ""},
		{name: "Jane Smith", domain: "", want: ""},
	}
	for _, tt := range tests {
		if got := emailguess.Generate(tt.name, tt.domain); got != tt.want {
			t.Fatalf("Generate(%q, %q)=%q want %q", tt.name, tt.domain, got, tt.want)
		}
	}
}

func TestDomain(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"https://www.acme.com/about": "acme.com",
		"acme.com":                   "acme.com",
		"http://Shop.Acme.com:8080/": "shop.acme.com",
		"":                           "",
	}
	for in, want := range tests {
		if got := emailguess.Domain(in); got != want {
			t.Fatalf("Domain(%q)=%q want %q", in, got, want)
		}
	}
}

type fakeMX struct {
	calls atomic.Int32
	has   bool
	err   error
}

func (f *fakeMX) HasMX(context.Context, string) (bool, error) {
	f.calls.Add(1)
	return f.has, f.err
}

func TestGuesser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	mx := &fakeMX{has: true}
	g := emailguess.NewGuesser(mx)
	if got := g.Guess(ctx, "Jane Smith", "https://www.acme.com"); got != "jane.smith@acme.com" {
		t.Fatalf("unexpected guess %q", got)
	}
	_ = g.Guess(ctx, "Bob Lee", "acme.com")
	if n := mx.calls.Load(); n != 1 {
		t.Fatalf("expected MX lookups to be cached per domain, got %d calls", n)
	}

	if got := emailguess.NewGuesser(&fakeMX{has: false}).Guess(ctx, "Jane Smith", "acme.com"); got != "" {
		t.Fatalf("domain without MX must not produce a guess, got %q", got)
	}
	if got := emailguess.NewGuesser(&fakeMX{err: errors.New("timeout")}).Guess(ctx, "Jane Smith", "acme.com"); got != "" {
		t.Fatalf("lookup failure must not produce a guess, got %q", got)
	}
	if got := g.Guess(ctx, "Jane Smith", "http://127.0.0.1:8080"); got != "" {
		t.Fatalf("IP hosts must not produce a guess, got %q", got)
	}
}

func startDNS(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("dns server did not start")
	}
	return pc.LocalAddr().String()
}

func TestDNSChecker_HasMX(t *testing.T) {
	t.Parallel()

	addr := startDNS(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		switch q.Name {
		case "acme.test.":
			m.Answer = append(m.Answer, &dns.MX{
				Hdr:        dns.RR_Header{Name: q.Name, Rrtype: dns.TypeMX, Class: dns.ClassINET, Ttl: 60},
				Preference: 10,
				Mx:         "mail.acme.test.",
			})
		case "nomail.test.":
		default:
			m.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(m)
	})

	c := emailguess.NewDNSChecker(time.Second, addr)
	ctx := context.Background()

	ok, err := c.HasMX(ctx, "acme.test")
	if err != nil || !ok {
		t.Fatalf("acme.test: ok=%v err=%v", ok, err)
	}
	ok, err = c.HasMX(ctx, "nomail.test")
	if err != nil || ok {
		t.Fatalf("nomail.test: ok=%v err=%v", ok, err)
	}
	ok, err = c.HasMX(ctx, "missing.test")
	if err != nil || ok {
		t.Fatalf("missing.test: ok=%v err=%v", ok, err)
	}
}
