package generate

import (
	"context"
	"net"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

var (
	defaultBlockedHosts = []string{"localhost", "*.local"}

	defaultPorts = map[string]string{
		"https": "443",
		"wss":   "443",
		"http":  "80",
		"ws":    "80",
	}

	privateNetworks = mustParseCIDRs(
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
		"::/128",
	)
)

func mustParseCIDRs(cidrs ...string) (networks []*net.IPNet) {
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		networks = append(networks, network)
	}
	return
}

// isPrivateIP reports whether ip is loopback, private or link-local.
func isPrivateIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func compileHostPatterns(patterns []string) (globs []glob.Glob, err error) {
	for _, pattern := range append(append([]string{}, defaultBlockedHosts...), patterns...) {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid host pattern %q", pattern)
		}
		globs = append(globs, g)
	}
	return
}

// originResolver turns candidate strings into source tokens for a single
// analysis. Lookups are memoized per analysis only.
type originResolver struct {
	page    *url.URL
	store   *directiveStore
	opts    *Options
	log     Logger
	lookup  HostResolver
	blocked []glob.Glob
	cache   *cache.Cache
	warnf   func(format string, args ...interface{})
}

func isKeywordToken(token string) bool {
	return strings.HasPrefix(token, "'") || strings.HasSuffix(token, "='")
}

func schemeAllowed(scheme string, allowHTTP bool) bool {
	switch scheme {
	case "https":
		return true
	case "http", "ws", "wss":
		return allowHTTP
	}
	return false
}

// resolve adds the token for raw to d when it passes scheme and network
// policy. Malformed candidates are dropped; only lookup failures return
// an error.
func (r *originResolver) resolve(ctx context.Context, d Directive, raw string) error {
	token := strings.TrimSpace(raw)
	if token == "" {
		return nil
	}
	if isKeywordToken(token) {
		r.store.add(d, token)
		return nil
	}

	ref, err := url.Parse(token)
	if err != nil {
		r.log.Debugf("dropping malformed %s candidate %q: %v", d, token, err)
		return nil
	}
	resolved := r.page.ResolveReference(ref)
	scheme := strings.ToLower(resolved.Scheme)
	host := strings.TrimSuffix(strings.ToLower(resolved.Hostname()), ".")
	if host == "" {
		r.log.Debugf("dropping %s candidate without host %q", d, token)
		return nil
	}
	if !schemeAllowed(scheme, r.opts.AllowHTTP) {
		return nil
	}

	if !r.opts.AllowPrivateOrigins {
		private, err := r.private(ctx, host)
		if err != nil {
			if r.opts.SkipUnresolvable {
				r.warnf("excluding %s from %s: %v", host, d, err)
				return nil
			}
			return err
		}
		if private {
			r.log.Debugf("rejecting private origin %s for %s", host, d)
			return nil
		}
	}

	hostPort := host
	if port := resolved.Port(); port != "" && port != defaultPorts[scheme] {
		hostPort = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		hostPort = "[" + host + "]"
	}
	r.store.add(d, scheme+"://"+hostPort)
	return nil
}

func (r *originResolver) private(ctx context.Context, host string) (bool, error) {
	for _, g := range r.blocked {
		if g.Match(host) {
			return true, nil
		}
	}
	if ip := net.ParseIP(host); ip != nil {
		return isPrivateIP(ip), nil
	}
	addrs, err := r.addresses(ctx, host)
	if err != nil {
		return false, err
	}
	for _, addr := range addrs {
		if isPrivateIP(addr.IP) {
			return true, nil
		}
	}
	return false, nil
}

func (r *originResolver) addresses(ctx context.Context, host string) ([]net.IPAddr, error) {
	if cached, ok := r.cache.Get(host); ok {
		return cached.([]net.IPAddr), nil
	}
	addrs, err := r.lookup.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, errors.Wrapf(ErrResolve, "%s: %v", host, err)
	}
	r.cache.Set(host, addrs, cache.NoExpiration)
	return addrs, nil
}
