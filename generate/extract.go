package generate

import (
	"path"
	"regexp"
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
)

// CSSReference is a URL found in CSS text.
type CSSReference struct {
	URL      string
	Import   bool
	FontFace bool
}

// Extractor finds candidate URLs in CSS and script text. The results are
// heuristic; nothing here evaluates CSS or JavaScript.
type Extractor interface {
	// Stylesheet returns url() and @import targets of a style sheet.
	Stylesheet(text string) []CSSReference
	// Declarations returns url() targets of a style attribute value.
	Declarations(text string) []CSSReference
	// ScriptEndpoints returns absolute fetch/WebSocket/EventSource targets.
	ScriptEndpoints(text string) []string
	// UsesEval reports eval-like constructs anywhere in text.
	UsesEval(text string) bool
}

var (
	rxCSSURL      = regexp.MustCompile(`(?i)url\(\s*(?:"([^"]*)"|'([^']*)'|([^)'"\s]+))\s*\)`)
	rxCSSImport   = regexp.MustCompile(`(?i)@import\s+(?:url\(\s*)?["']?([^"')\s;]+)["']?\s*\)?`)
	rxImportRef   = regexp.MustCompile(`(?i)^\s*(?:url\(\s*)?["']?([^"')\s;]+)`)
	rxFontFace    = regexp.MustCompile(`(?is)@font-face\s*\{[^}]*\}`)
	rxScriptEndpt = regexp.MustCompile(`(?:\bfetch|\bnew\s+WebSocket|\bnew\s+EventSource)\s*\(\s*["'` + "`" + `]((?:https?|wss?)://[^"'` + "`" + `\s]+)["'` + "`" + `]`)
	rxEval        = regexp.MustCompile(`\beval\s*\(|\bFunction\s*\(|\bset(?:Timeout|Interval)\s*\(\s*["'` + "`" + `]`)

	imageExtensions = map[string]bool{
		".png":  true,
		".jpg":  true,
		".jpeg": true,
		".gif":  true,
		".svg":  true,
		".webp": true,
		".bmp":  true,
		".ico":  true,
	}
)

type patternExtractor struct{}

// NewPatternExtractor returns the default Extractor: douceur for CSS
// structure, regular expressions for everything else.
func NewPatternExtractor() Extractor {
	return patternExtractor{}
}

func (patternExtractor) Stylesheet(text string) []CSSReference {
	sheet, err := parser.Parse(text)
	if err != nil {
		return scanStylesheetText(text)
	}
	var refs []CSSReference
	var walk func(rules []*css.Rule)
	walk = func(rules []*css.Rule) {
		for _, rule := range rules {
			name := strings.ToLower(rule.Name)
			if rule.Kind == css.AtRule && name == "@import" {
				if m := rxImportRef.FindStringSubmatch(rule.Prelude); m != nil {
					refs = append(refs, CSSReference{URL: m[1], Import: true})
				}
				continue
			}
			fontFace := rule.Kind == css.AtRule && name == "@font-face"
			for _, decl := range rule.Declarations {
				for _, u := range cssURLs(decl.Value) {
					refs = append(refs, CSSReference{URL: u, FontFace: fontFace})
				}
			}
			walk(rule.Rules)
		}
	}
	walk(sheet.Rules)
	return refs
}

func (patternExtractor) Declarations(text string) (refs []CSSReference) {
	fallback := func() (refs []CSSReference) {
		for _, u := range cssURLs(text) {
			refs = append(refs, CSSReference{URL: u})
		}
		return
	}
	// douceur drops the value of a final declaration without ';'.
	block := strings.TrimSpace(text)
	if block != "" && !strings.HasSuffix(block, ";") {
		block += ";"
	}
	decls, err := parser.ParseDeclarations(block)
	if err != nil {
		return fallback()
	}
	for _, decl := range decls {
		if strings.TrimSpace(decl.Value) == "" {
			return fallback()
		}
	}
	for _, decl := range decls {
		for _, u := range cssURLs(decl.Value) {
			refs = append(refs, CSSReference{URL: u})
		}
	}
	return
}

func (patternExtractor) ScriptEndpoints(text string) (endpoints []string) {
	for _, m := range rxScriptEndpt.FindAllStringSubmatch(text, -1) {
		endpoints = append(endpoints, m[1])
	}
	return
}

func (patternExtractor) UsesEval(text string) bool {
	return rxEval.MatchString(text)
}

// scanStylesheetText is used when douceur rejects the style sheet.
func scanStylesheetText(text string) (refs []CSSReference) {
	fontFaces := rxFontFace.FindAllStringIndex(text, -1)
	inFontFace := func(offset int) bool {
		for _, span := range fontFaces {
			if offset >= span[0] && offset < span[1] {
				return true
			}
		}
		return false
	}
	imports := rxCSSImport.FindAllStringSubmatchIndex(text, -1)
	inImport := func(offset int) bool {
		for _, span := range imports {
			if offset >= span[0] && offset < span[1] {
				return true
			}
		}
		return false
	}
	for _, m := range imports {
		refs = append(refs, CSSReference{URL: text[m[2]:m[3]], Import: true})
	}
	for _, m := range rxCSSURL.FindAllStringSubmatchIndex(text, -1) {
		if inImport(m[0]) {
			continue
		}
		refs = append(refs, CSSReference{URL: submatch(text, m), FontFace: inFontFace(m[0])})
	}
	return
}

func cssURLs(text string) (urls []string) {
	for _, m := range rxCSSURL.FindAllStringSubmatchIndex(text, -1) {
		urls = append(urls, submatch(text, m))
	}
	return
}

// submatch returns the first non-empty capture of a url() match.
func submatch(text string, m []int) string {
	for i := 2; i+1 < len(m); i += 2 {
		if m[i] >= 0 && m[i+1] > m[i] {
			return strings.TrimSpace(text[m[i]:m[i+1]])
		}
	}
	return ""
}

func isImageURL(raw string) bool {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	return imageExtensions[strings.ToLower(path.Ext(raw))]
}
