package resolver

import (
	"context"
	"net"
	"testing"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
	"github.com/Himanshuwagh/OutPilot/internal/smtptest"
)

func TestProberProbe(t *testing.T) {
	srv := smtptest.New(t, func(s *smtptest.Server) {
		s.Rcpt = func(addr string) smtptest.Reply {
			switch addr {
			case "jane@example.test":
				return smtptest.OK
			case "busy@example.test":
				return smtptest.Reply{Code: 450, Text: "4.2.1 try later"}
			default:
				return smtptest.Reply{Code: 550, Text: "5.1.1 no such user"}
			}
		}
	})

	dns := &stubDNS{mx: map[string][]*net.MX{"example.test": mx(srv.Host)}}
	p := NewProber(dns, ProbeConfig{Port: srv.Port}, nil)
	ctx := context.Background()

	tests := map[string]lead.VerificationState{
		"jane@example.test": lead.Deliverable,
		"bob@example.test":  lead.Undeliverable,
		"busy@example.test": lead.Unknown,
		"jane@nomx.test":    lead.Undeliverable,
		"not-an-address":    lead.Undeliverable,
	}
	for addr, want := range tests {
		got, err := p.Probe(ctx, addr)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", addr, err)
		}
		if got != want {
			t.Fatalf("%s: got %q, want %q", addr, got, want)
		}
	}

	all, err := p.CatchAll(ctx, "example.test")
	if err != nil || all {
		t.Fatalf("expected no catch-all, got %v %v", all, err)
	}
	if !contains(srv.Recipients(), "jane@example.test") {
		t.Fatalf("server did not see the probe: %v", srv.Recipients())
	}
}

func TestProberCatchAllAndCaching(t *testing.T) {
	srv := smtptest.New(t)
	dns := &stubDNS{mx: map[string][]*net.MX{"catchall.test": mx(srv.Host)}}
	p := NewProber(dns, ProbeConfig{Port: srv.Port}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		all, err := p.CatchAll(ctx, "catchall.test")
		if err != nil || !all {
			t.Fatalf("expected catch-all, got %v %v", all, err)
		}
	}
	if n := len(srv.Recipients()); n != 1 {
		t.Fatalf("catch-all must be checked once per domain, saw %d probes", n)
	}
	if dns.lookups != 1 {
		t.Fatalf("mx must be looked up once per domain, saw %d lookups", dns.lookups)
	}
}

func TestProberUnreachableIsUnknown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	dns := &stubDNS{mx: map[string][]*net.MX{"down.test": mx("127.0.0.1")}}
	p := NewProber(dns, ProbeConfig{Port: port}, nil)

	got, err := p.Probe(context.Background(), "jane@down.test")
	if err != nil || got != lead.Unknown {
		t.Fatalf("expected unknown, got %q %v", got, err)
	}
}
