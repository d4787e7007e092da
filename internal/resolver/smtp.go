package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

// ErrNoMX is returned for domains without mail exchangers.
var ErrNoMX = errors.New("no mail exchangers")

// ProbeConfig controls mailbox probing.
type ProbeConfig struct {
	Port     int    `mapstructure:"port"`
	Helo     string `mapstructure:"helo"`
	MailFrom string `mapstructure:"mail-from"`
}

func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{Port: 25, Helo: "verify.local", MailFrom: "check@verify.local"}
}

// Prober checks mailboxes by asking the domain's mail exchanger whether it
// would accept a recipient. MX lookups and catch-all checks are shared per domain.
type Prober struct {
	dns    DNS
	cfg    ProbeConfig
	dialer net.Dialer
	logger *zap.Logger

	group    singleflight.Group
	mu       sync.Mutex
	mx       map[string][]string
	catchAll map[string]bool
}

func NewProber(dns DNS, cfg ProbeConfig, logger *zap.Logger) *Prober {
	def := DefaultProbeConfig()
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.Helo == "" {
		cfg.Helo = def.Helo
	}
	if cfg.MailFrom == "" {
		cfg.MailFrom = def.MailFrom
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{
		dns:      dns,
		cfg:      cfg,
		logger:   logger,
		mx:       make(map[string][]string),
		catchAll: make(map[string]bool),
	}
}

// MX returns the domain's mail exchangers ordered by preference.
func (p *Prober) MX(ctx context.Context, domain string) ([]string, error) {
	domain = strings.ToLower(domain)
	p.mu.Lock()
	hosts, ok := p.mx[domain]
	p.mu.Unlock()
	if ok {
		return hosts, nil
	}

	v, err, _ := p.group.Do("mx:"+domain, func() (any, error) {
		records, err := p.dns.LookupMX(ctx, domain)
		if err != nil {
			var dnsErr *net.DNSError
			if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
				return []string(nil), nil
			}
			return nil, err
		}
		sort.SliceStable(records, func(i, j int) bool { return records[i].Pref < records[j].Pref })
		out := make([]string, 0, len(records))
		for _, r := range records {
			out = append(out, strings.TrimSuffix(r.Host, "."))
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("lookup mx %s: %v: %w", domain, err, lead.ErrTransientExternal)
	}

	hosts = v.([]string)
	p.mu.Lock()
	p.mx[domain] = hosts
	p.mu.Unlock()
	return hosts, nil
}

// CatchAll reports whether the domain accepts any recipient.
func (p *Prober) CatchAll(ctx context.Context, domain string) (bool, error) {
	domain = strings.ToLower(domain)
	p.mu.Lock()
	all, ok := p.catchAll[domain]
	p.mu.Unlock()
	if ok {
		return all, nil
	}

	v, err, _ := p.group.Do("catchall:"+domain, func() (any, error) {
		fake := "probe-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16] + "@" + domain
		state, err := p.Probe(ctx, fake)
		if err != nil {
			return false, err
		}
		return state == lead.Deliverable, nil
	})
	if err != nil {
		return false, err
	}

	all = v.(bool)
	p.mu.Lock()
	p.catchAll[domain] = all
	p.mu.Unlock()
	return all, nil
}

// Probe asks the preferred mail exchanger about one recipient. Connection
// problems and temporary replies yield Unknown; only a failed MX lookup or a
// cancelled context is returned as an error.
func (p *Prober) Probe(ctx context.Context, address string) (lead.VerificationState, error) {
	_, domain, ok := strings.Cut(address, "@")
	if !ok || domain == "" {
		return lead.Undeliverable, nil
	}

	hosts, err := p.MX(ctx, domain)
	if err != nil {
		return lead.Unknown, err
	}
	if len(hosts) == 0 {
		return lead.Undeliverable, nil
	}

	state, err := p.rcpt(ctx, hosts[0], address)
	if err != nil {
		if ctx.Err() != nil {
			return lead.Unknown, ctx.Err()
		}
		p.logger.Debug("smtp probe inconclusive", zap.String("mx", hosts[0]), zap.String("address", address), zap.Error(err))
		return lead.Unknown, nil
	}
	return state, nil
}

func (p *Prober) rcpt(ctx context.Context, host, address string) (lead.VerificationState, error) {
	conn, err := p.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(p.cfg.Port)))
	if err != nil {
		return lead.Unknown, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return lead.Unknown, err
	}
	defer c.Close()

	if err := c.Hello(p.cfg.Helo); err != nil {
		return lead.Unknown, err
	}
	if err := c.Mail(p.cfg.MailFrom); err != nil {
		return lead.Unknown, err
	}

	err = c.Rcpt(address)
	_ = c.Quit()
	if err == nil {
		return lead.Deliverable, nil
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		return lead.Undeliverable, nil
	}
	return lead.Unknown, nil
}
