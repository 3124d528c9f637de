package generate

import (
	"testing"
)

func findRef(refs []CSSReference, u string) (CSSReference, bool) {
	for _, ref := range refs {
		if ref.URL == u {
			return ref, true
		}
	}
	return CSSReference{}, false
}

func TestStylesheetReferences(t *testing.T) {
	css := `
@import url("https://fonts.example.com/css?family=Inter");
@import 'https://cdn.example.com/base.css';
body { background: url(https://img.example.com/bg.png) no-repeat; }
.logo { background-image: url('/static/logo.svg'); }
@font-face {
  font-family: "Inter";
  src: url("https://fonts.example.com/inter.woff2") format("woff2");
}
@media (min-width: 600px) {
  .hero { background: url(https://img.example.com/hero.webp); }
}
`
	refs := NewPatternExtractor().Stylesheet(css)

	tests := []struct {
		url      string
		imports  bool
		fontFace bool
	}{
		{"https://fonts.example.com/css?family=Inter", true, false},
		{"https://cdn.example.com/base.css", true, false},
		{"https://img.example.com/bg.png", false, false},
		{"/static/logo.svg", false, false},
		{"https://fonts.example.com/inter.woff2", false, true},
		{"https://img.example.com/hero.webp", false, false},
	}
	for _, tt := range tests {
		ref, ok := findRef(refs, tt.url)
		if !ok {
			t.Errorf("missing reference %s in %+v", tt.url, refs)
			continue
		}
		if ref.Import != tt.imports {
			t.Errorf("%s: Import = %v, want %v", tt.url, ref.Import, tt.imports)
		}
		if ref.FontFace != tt.fontFace {
			t.Errorf("%s: FontFace = %v, want %v", tt.url, ref.FontFace, tt.fontFace)
		}
	}
}

func TestScanStylesheetTextFallback(t *testing.T) {
	css := `@import "https://cdn.example.com/a.css";
@font-face { font-family: X; src: url(https://fonts.example.com/x.woff); }
div { background: url("https://img.example.com/a.gif") }`

	refs := scanStylesheetText(css)
	if len(refs) != 3 {
		t.Fatalf("expected 3 references, got %+v", refs)
	}
	if ref, ok := findRef(refs, "https://cdn.example.com/a.css"); !ok || !ref.Import {
		t.Errorf("import not found: %+v", refs)
	}
	if ref, ok := findRef(refs, "https://fonts.example.com/x.woff"); !ok || !ref.FontFace {
		t.Errorf("font-face source not found: %+v", refs)
	}
	if ref, ok := findRef(refs, "https://img.example.com/a.gif"); !ok || ref.FontFace || ref.Import {
		t.Errorf("plain url not found: %+v", refs)
	}
}

func TestDeclarationReferences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"last declaration without semicolon", `color: red; background: url("https://img.example.com/a.jpg")`, []string{"https://img.example.com/a.jpg"}},
		{"single declaration", `background:url(https://img.example.com/a.png)`, []string{"https://img.example.com/a.png"}},
		{"trailing semicolon", `background: url('https://img.example.com/b.gif');`, []string{"https://img.example.com/b.gif"}},
		{"two urls", `background: url(https://img.example.com/c.png); cursor: url(https://cdn.example.com/d.cur)`, []string{"https://img.example.com/c.png", "https://cdn.example.com/d.cur"}},
		{"no urls", `color: red`, nil},
	}
	e := NewPatternExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := e.Declarations(tt.text)
			if len(refs) != len(tt.want) {
				t.Fatalf("got %+v, want %v", refs, tt.want)
			}
			for i, u := range tt.want {
				if refs[i].URL != u {
					t.Errorf("refs[%d] = %s, want %s", i, refs[i].URL, u)
				}
			}
		})
	}
}

func TestScriptEndpoints(t *testing.T) {
	script := `
fetch("https://api.example.com/v1/items").then(r => r.json());
const ws = new WebSocket('wss://live.example.com/socket');
const es = new EventSource(` + "`https://events.example.com/stream`" + `);
fetch(relativeUrl);
fetch("/local/path");
`
	got := NewPatternExtractor().ScriptEndpoints(script)
	want := []string{
		"https://api.example.com/v1/items",
		"wss://live.example.com/socket",
		"https://events.example.com/stream",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestUsesEval(t *testing.T) {
	tests := map[string]bool{
		`eval("1+1")`:                      true,
		`var f = new Function("return 1")`: true,
		`setTimeout("tick()", 10)`:         true,
		`setInterval('tick()', 10)`:        true,
		`setTimeout(tick, 10)`:             false,
		`retrieval(x)`:                     false,
		`callFunction(x)`:                  false,
		`console.log("evaluate")`:          false,
	}
	e := NewPatternExtractor()
	for text, want := range tests {
		if got := e.UsesEval(text); got != want {
			t.Errorf("UsesEval(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestIsImageURL(t *testing.T) {
	tests := map[string]bool{
		"https://img.example.com/a.PNG":         true,
		"/static/logo.svg?v=2":                  true,
		"icon.ico#frag":                         true,
		"https://fonts.example.com/inter.woff2": false,
		"https://cdn.example.com/a.css":         false,
		"https://img.example.com/png":           false,
	}
	for raw, want := range tests {
		if got := isImageURL(raw); got != want {
			t.Errorf("isImageURL(%q) = %v, want %v", raw, got, want)
		}
	}
}
