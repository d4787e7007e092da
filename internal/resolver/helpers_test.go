package resolver

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Himanshuwagh/OutPilot/internal/httpclient"
	"github.com/Himanshuwagh/OutPilot/internal/lead"
	"github.com/Himanshuwagh/OutPilot/internal/retry"
)

type stubDNS struct {
	mu      sync.Mutex
	mx      map[string][]*net.MX
	hosts   map[string][]string
	lookups int
}

func (d *stubDNS) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	if mx, ok := d.mx[name]; ok {
		return mx, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func (d *stubDNS) LookupHost(_ context.Context, host string) ([]string, error) {
	if addrs, ok := d.hosts[host]; ok {
		return addrs, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func mx(hosts ...string) []*net.MX {
	out := make([]*net.MX, 0, len(hosts))
	for i, h := range hosts {
		out = append(out, &net.MX{Host: h + ".", Pref: uint16(10 * (i + 1))})
	}
	return out
}

type stubVerifier struct {
	mu       sync.Mutex
	states   map[string]lead.VerificationState
	catchAll map[string]bool
	probed   []string
}

func (v *stubVerifier) CatchAll(_ context.Context, domain string) (bool, error) {
	return v.catchAll[domain], nil
}

func (v *stubVerifier) Probe(_ context.Context, address string) (lead.VerificationState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.probed = append(v.probed, address)
	if s, ok := v.states[address]; ok {
		return s, nil
	}
	return lead.Undeliverable, nil
}

// redirect sends every request to target, keeping the original Host header,
// so one test server can play search index, people API, code host and websites.
type redirect struct {
	target *url.URL
}

func (rt redirect) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = rt.target.Scheme
	out.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(out)
}

func newWorld(t *testing.T, handler http.HandlerFunc) *httpclient.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	target, _ := url.Parse(srv.URL)
	c := httpclient.New(5*time.Second, "outpilot-test", nil)
	c.HTTPClient.Transport = redirect{target: target}
	return c
}

func hostOnly(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		return r.Host
	}
	return host
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SearchURL = "https://search.test/html/"
	cfg.PeopleSearch.URL = "https://people.test/v1/people"
	cfg.CodeHost.URL = "https://code.test"
	cfg.Retry = retry.Config{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return cfg
}

const searchPage = `<html><body>
<a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.linkedin.com%2Fcompany%2Facme">Acme | LinkedIn</a>
<a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.acme.com%2F&rut=x">Acme - Home</a>
</body></html>`

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
