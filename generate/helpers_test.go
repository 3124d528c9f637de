package generate

import (
	"context"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const testPage = "https://site.example/app/index.html"

// stubResolver answers lookups from a fixed table and counts them.
type stubResolver struct {
	mu    sync.Mutex
	hosts map[string][]string
	fail  map[string]error
	calls map[string]int
}

func newStubResolver() *stubResolver {
	return &stubResolver{
		hosts: map[string][]string{
			"site.example":          {"93.184.216.34"},
			"cdn.example.com":       {"93.184.216.35", "2606:2800:220:1::35"},
			"fonts.example.com":     {"93.184.216.36"},
			"img.example.com":       {"93.184.216.37"},
			"api.example.com":       {"93.184.216.38"},
			"insecure.example.com":  {"93.184.216.39"},
			"internal.example.com":  {"10.0.0.5"},
			"rebinding.example.com": {"93.184.216.40", "192.168.1.10"},
		},
		fail:  map[string]error{},
		calls: map[string]int{},
	}
}

func (r *stubResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[host]++
	if err, ok := r.fail[host]; ok {
		return nil, err
	}
	ips, ok := r.hosts[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	addrs := make([]net.IPAddr, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return addrs, nil
}

func (r *stubResolver) count(host string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[host]
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testOptions(stub *stubResolver) Options {
	opts := DefaultOptions()
	opts.Resolver = stub
	opts.Logger = quietLogger()
	return opts
}

func newTestResolver(t *testing.T, opts Options, stub *stubResolver) (*originResolver, *directiveStore, *[]string) {
	t.Helper()
	page, err := url.Parse(testPage)
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	blocked, err := compileHostPatterns(opts.BlockHosts)
	if err != nil {
		t.Fatalf("compile host patterns: %v", err)
	}
	var warnings []string
	store := newDirectiveStore()
	r := &originResolver{
		page:    page,
		store:   store,
		opts:    &opts,
		log:     quietLogger(),
		lookup:  stub,
		blocked: blocked,
		cache:   cache.New(cache.NoExpiration, 0),
		warnf: func(format string, args ...interface{}) {
			warnings = append(warnings, format)
		},
	}
	return r, store, &warnings
}

func generateHTML(t *testing.T, opts Options, html string) *Result {
	t.Helper()
	g, err := NewGenerator(testPage, opts)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	result, err := g.GenerateFromHTML(context.Background(), strings.NewReader(html))
	if err != nil {
		t.Fatalf("GenerateFromHTML: %v", err)
	}
	return result
}

func sources(result *Result, d Directive) []string {
	for _, entry := range result.Directives {
		if entry.Name == d {
			return entry.Sources
		}
	}
	return nil
}

func hasDirective(result *Result, d Directive) bool {
	for _, entry := range result.Directives {
		if entry.Name == d {
			return true
		}
	}
	return false
}

func containsToken(list []string, token string) bool {
	for _, item := range list {
		if item == token {
			return true
		}
	}
	return false
}
