package generate

import (
	"context"
	"strings"
)

type elementSource struct {
	directive Directive
	selector  string
	attr      string
}

var (
	htmlSourceElements = []elementSource{
		{ScriptSrc, "script[src]", "src"},
		{WorkerSrc, "script[type='text/worker'][src]", "src"},
		{StyleSrc, "link[rel~='stylesheet'][href]", "href"},
		{ImgSrc, "img[src]", "src"},
		{ImgSrc, "video[poster]", "poster"},
		{ImgSrc, "link[rel~='icon'][href], link[rel~='apple-touch-icon'][href]", "href"},
		{MediaSrc, "audio[src], video[src], track[src], source[src]", "src"},
		{FrameSrc, "iframe[src]", "src"},
		{ManifestSrc, "link[rel~='manifest'][href]", "href"},
		{FontSrc, "link[rel~='preload'][as='font'][href], link[rel~='prefetch'][as='font'][href]", "href"},
		{ScriptSrc, "link[rel~='preload'][as='script'][href]", "href"},
		{StyleSrc, "link[rel~='preload'][as='style'][href]", "href"},
		{ImgSrc, "link[rel~='preload'][as='image'][href]", "href"},
		{BaseURI, "base[href]", "href"},
		{FormAction, "form[action]", "action"},
	}

	htmlSrcsetElements = "img[srcset], source[srcset]"

	htmlBlockedElements = "object, embed, applet"
)

// scanner walks a Document and feeds candidates to the resolver.
type scanner struct {
	resolver  *originResolver
	store     *directiveStore
	flags     *scanFlags
	extractor Extractor
	useHashes bool
	warnf     func(format string, args ...interface{})
}

// scan maps the elements of doc onto directives. raw is the page markup
// used for the page-wide eval heuristic.
func (s *scanner) scan(ctx context.Context, doc Document, raw string) error {
	for _, source := range htmlSourceElements {
		for _, el := range doc.Find(source.selector) {
			if source.directive == ScriptSrc && isWorkerScript(el) {
				continue
			}
			value, _ := el.Attr(source.attr)
			if err := s.resolver.resolve(ctx, source.directive, value); err != nil {
				return err
			}
		}
	}

	for _, el := range doc.Find(htmlSrcsetElements) {
		srcset, _ := el.Attr("srcset")
		for _, candidate := range parseSrcset(srcset) {
			if err := s.resolver.resolve(ctx, ImgSrc, candidate); err != nil {
				return err
			}
		}
	}

	for _, el := range doc.Find(htmlBlockedElements) {
		s.warnf("<%s> element will be blocked by object-src 'none'", el.Name())
	}

	if err := s.scanStyles(ctx, doc); err != nil {
		return err
	}
	if err := s.scanScripts(ctx, doc); err != nil {
		return err
	}

	if raw == "" {
		raw = doc.HTML()
	}
	if s.extractor.UsesEval(raw) {
		s.flags.Eval = true
	}

	if len(s.store.get(BaseURI)) == 0 {
		s.store.add(BaseURI, Self)
	}
	return nil
}

func (s *scanner) scanStyles(ctx context.Context, doc Document) error {
	for _, el := range doc.Find("[style]") {
		style, _ := el.Attr("style")
		if strings.TrimSpace(style) == "" {
			continue
		}
		s.flags.InlineStyle = true
		if err := s.routeCSS(ctx, StyleSrc, s.extractor.Declarations(style)); err != nil {
			return err
		}
	}
	for _, el := range doc.Find("style") {
		text := el.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		s.flags.InlineStyle = true
		if err := s.routeCSS(ctx, StyleSrc, s.extractor.Stylesheet(text)); err != nil {
			return err
		}
	}
	return nil
}

// routeCSS resolves every reference against d, and also against img-src
// for image files and font-src for @font-face sources.
func (s *scanner) routeCSS(ctx context.Context, d Directive, refs []CSSReference) error {
	for _, ref := range refs {
		targets := []Directive{d}
		if ref.FontFace {
			targets = append(targets, FontSrc)
		}
		if !ref.Import && isImageURL(ref.URL) {
			targets = append(targets, ImgSrc)
		}
		for _, target := range targets {
			if err := s.resolver.resolve(ctx, target, ref.URL); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *scanner) scanScripts(ctx context.Context, doc Document) error {
	for _, el := range doc.Find("script:not([src])") {
		tokens, inline := classifyInlineScript(el, s.useHashes)
		if !inline {
			continue
		}
		s.flags.InlineScript = true
		for _, token := range tokens {
			if err := s.resolver.resolve(ctx, ScriptSrc, token); err != nil {
				return err
			}
		}
		for _, endpoint := range s.extractor.ScriptEndpoints(el.Text()) {
			if err := s.resolver.resolve(ctx, ConnectSrc, endpoint); err != nil {
				return err
			}
		}
	}

	for _, el := range doc.Find("*") {
		if hasEventHandler(el) || isJavaScriptLink(el) {
			s.flags.InlineScript = true
			break
		}
	}
	return nil
}

func isWorkerScript(el Element) bool {
	kind, _ := el.Attr("type")
	return strings.EqualFold(strings.TrimSpace(kind), "text/worker")
}

func hasEventHandler(el Element) bool {
	for name := range el.Attrs() {
		if len(name) > 2 && strings.HasPrefix(name, "on") {
			return true
		}
	}
	return false
}

func isJavaScriptLink(el Element) bool {
	if el.Name() != "a" {
		return false
	}
	href, _ := el.Attr("href")
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(href)), "javascript:")
}

// parseSrcset returns the URL of every image candidate in a srcset value.
func parseSrcset(srcset string) (urls []string) {
	for _, candidate := range strings.Split(srcset, ",") {
		if fields := strings.Fields(candidate); len(fields) > 0 {
			urls = append(urls, fields[0])
		}
	}
	return
}
