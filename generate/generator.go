package generate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
)

// Generator produces a Content-Security-Policy for one target page. It is
// safe for concurrent use; every call to Generate owns its own state.
type Generator struct {
	target    *url.URL
	opts      Options
	log       Logger
	client    *http.Client
	lookup    HostResolver
	extractor Extractor
	blocked   []glob.Glob
}

// NewGenerator validates target and captures a copy of opts.
func NewGenerator(target string, opts Options) (*Generator, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, ErrEmptyURL
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return nil, errors.Wrapf(ErrInvalidURL, "%q", target)
	}
	if !targetSchemeAllowed(u.Scheme, opts.AllowHTTP) {
		return nil, errors.Wrapf(ErrInsecureScheme, "%s", u.Scheme)
	}
	blocked, err := compileHostPatterns(opts.BlockHosts)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		target:    u,
		opts:      snapshot(opts),
		log:       opts.Logger,
		client:    opts.Client,
		lookup:    opts.Resolver,
		extractor: opts.Extractor,
		blocked:   blocked,
	}
	if g.log == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.WarnLevel)
		g.log = logger
	}
	if g.client == nil {
		g.client = NewHTTPClient(g.opts)
	}
	if g.lookup == nil {
		g.lookup = net.DefaultResolver
	}
	if g.extractor == nil {
		g.extractor = NewPatternExtractor()
	}
	return g, nil
}

// snapshot copies the reference typed fields of opts.
func snapshot(opts Options) Options {
	c := opts
	if opts.Presets != nil {
		c.Presets = make(map[string][]string, len(opts.Presets))
		for name, tokens := range opts.Presets {
			c.Presets[name] = append([]string{}, tokens...)
		}
	}
	if opts.Headers != nil {
		c.Headers = make(map[string]string, len(opts.Headers))
		for key, value := range opts.Headers {
			c.Headers[key] = value
		}
	}
	c.BlockHosts = append([]string{}, opts.BlockHosts...)
	return c
}

// Target returns the URL the generator was created for.
func (g *Generator) Target() string {
	return g.target.String()
}

type analysis struct {
	g        *Generator
	state    State
	store    *directiveStore
	flags    scanFlags
	warnings []string
}

func (g *Generator) newAnalysis() *analysis {
	return &analysis{
		g:     g,
		state: StateCreated,
		store: seedStore(&g.opts, g.log),
	}
}

func (a *analysis) transition(next State) {
	a.g.log.Debugf("%s: %s -> %s", a.g.target, a.state, next)
	a.state = next
}

func (a *analysis) warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	a.warnings = append(a.warnings, msg)
	a.g.log.Warnf("%s", msg)
}

func (a *analysis) fail(err error) error {
	a.transition(StateFailed)
	a.g.log.Errorf("generating policy for %s: %v", a.g.target, err)
	return err
}

// Generate fetches the target page and returns its policy. Nothing partial
// is returned on failure.
func (g *Generator) Generate(ctx context.Context) (*Result, error) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}
	a := g.newAnalysis()
	target := g.target
	for hop := 0; ; hop++ {
		a.transition(StateFetching)
		page, err := g.fetch(ctx, target)
		if err != nil {
			return nil, a.fail(err)
		}

		a.transition(StateParsing)
		if !isHTML(page.contentType, page.body) {
			a.warnf("unexpected content-type %q for %s", page.contentType, page.url)
		}
		text := decodeBody(page.body, page.contentType)
		doc, err := ParseDocument(strings.NewReader(text))
		if err != nil {
			return nil, a.fail(err)
		}

		if g.opts.FollowMetaRefresh && hop < maxMetaRefresh {
			if next, ok := metaRefreshTarget(doc, page.url); ok && next.String() != page.url.String() {
				if targetSchemeAllowed(next.Scheme, g.opts.AllowHTTP) {
					g.log.Debugf("following meta refresh from %s to %s", page.url, next)
					target = next
					continue
				}
				a.warnf("not following meta refresh to %s", next)
			}
		}

		if page.existing != "" {
			g.log.Infof("%s already serves a policy: %s", page.url, page.existing)
		}
		return a.analyze(ctx, page.url, doc, text, page.existing)
	}
}

// GenerateFromHTML builds the policy for markup that was already retrieved,
// using the target URL as the page URL.
func (g *Generator) GenerateFromHTML(ctx context.Context, r io.Reader) (*Result, error) {
	a := g.newAnalysis()
	a.transition(StateParsing)
	body, err := readBounded(r, g.opts.MaxBodySize)
	if err != nil {
		return nil, a.fail(err)
	}
	text := string(body)
	doc, err := ParseDocument(strings.NewReader(text))
	if err != nil {
		return nil, a.fail(err)
	}
	return a.analyze(ctx, g.target, doc, text, "")
}

func (a *analysis) analyze(ctx context.Context, page *url.URL, doc Document, raw, existing string) (*Result, error) {
	g := a.g
	resolver := &originResolver{
		page:    page,
		store:   a.store,
		opts:    &g.opts,
		log:     g.log,
		lookup:  g.lookup,
		blocked: g.blocked,
		cache:   cache.New(cache.NoExpiration, 0),
		warnf:   a.warnf,
	}
	s := &scanner{
		resolver:  resolver,
		store:     a.store,
		flags:     &a.flags,
		extractor: g.extractor,
		useHashes: g.opts.UseHashes,
		warnf:     a.warnf,
	}
	if err := s.scan(ctx, doc, raw); err != nil {
		return nil, a.fail(err)
	}

	a.transition(StateAssembling)
	nonce, err := assemble(a.store, a.flags, &g.opts, a.warnf)
	if err != nil {
		return nil, a.fail(err)
	}
	a.transition(StateComplete)

	return &Result{
		URL:        page.String(),
		Header:     a.store.value(),
		Nonce:      nonce,
		Existing:   existing,
		Directives: a.store.entries(),
		Warnings:   a.warnings,
		State:      a.state,
	}, nil
}

// decodeBody converts body to UTF-8 according to its content type.
func decodeBody(body []byte, contentType string) string {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return string(body)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}
