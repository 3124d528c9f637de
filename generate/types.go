package generate

import (
	"context"
	"net"
	"net/http"
	"time"
)

const VERSION = "0.2.0"

// Directive is a CSP directive name from the fixed vocabulary below.
type Directive string

const (
	DefaultSrc              Directive = "default-src"
	ScriptSrc               Directive = "script-src"
	StyleSrc                Directive = "style-src"
	ImgSrc                  Directive = "img-src"
	FontSrc                 Directive = "font-src"
	ConnectSrc              Directive = "connect-src"
	FrameSrc                Directive = "frame-src"
	ObjectSrc               Directive = "object-src"
	BaseURI                 Directive = "base-uri"
	FormAction              Directive = "form-action"
	FrameAncestors          Directive = "frame-ancestors"
	MediaSrc                Directive = "media-src"
	WorkerSrc               Directive = "worker-src"
	ManifestSrc             Directive = "manifest-src"
	ReportURI               Directive = "report-uri"
	ReportTo                Directive = "report-to"
	UpgradeInsecureRequests Directive = "upgrade-insecure-requests"
	BlockAllMixedContent    Directive = "block-all-mixed-content"
	RequireTrustedTypesFor  Directive = "require-trusted-types-for"
	Sandbox                 Directive = "sandbox"
)

// Directives lists the vocabulary in canonical order.
var Directives = []Directive{
	DefaultSrc, ScriptSrc, StyleSrc, ImgSrc, FontSrc, ConnectSrc, FrameSrc,
	ObjectSrc, BaseURI, FormAction, FrameAncestors, MediaSrc, WorkerSrc,
	ManifestSrc, ReportURI, ReportTo, UpgradeInsecureRequests,
	BlockAllMixedContent, RequireTrustedTypesFor, Sandbox,
}

// ParseDirective returns the Directive for name, or false when name is not
// part of the vocabulary.
func ParseDirective(name string) (Directive, bool) {
	for _, d := range Directives {
		if string(d) == name {
			return d, true
		}
	}
	return "", false
}

// Keyword source tokens.
const (
	Self           = "'self'"
	None           = "'none'"
	UnsafeInline   = "'unsafe-inline'"
	UnsafeEval     = "'unsafe-eval'"
	StrictDynamic  = "'strict-dynamic'"
	TrustedScripts = "'script'"
)

// Logger receives side-channel diagnostics. *logrus.Logger satisfies it.
type Logger interface {
	Errorf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// HostResolver looks up every address of a hostname. *net.Resolver
// satisfies it.
type HostResolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Options is the policy configuration. A copy is captured by NewGenerator.
type Options struct {
	AllowHTTP               bool
	AllowPrivateOrigins     bool
	AllowUnsafeInlineScript bool
	AllowUnsafeInlineStyle  bool
	AllowUnsafeEval         bool
	RequireTrustedTypes     bool
	UseNonce                bool
	UseHashes               bool
	UseStrictDynamic        bool
	UpgradeInsecureRequests bool
	BlockMixedContent       bool
	RestrictFraming         bool
	UseSandbox              bool

	// StrictDynamicInlineFallback adds 'unsafe-inline' next to
	// 'strict-dynamic' for browsers that predate CSP level 3.
	StrictDynamicInlineFallback bool
	// SkipUnresolvable drops a candidate whose hostname fails to resolve
	// instead of failing the whole analysis.
	SkipUnresolvable bool
	// FollowMetaRefresh follows <meta http-equiv="refresh"> redirects.
	FollowMetaRefresh bool

	// MaxBodySize is the response body limit in bytes, 0 is unlimited.
	MaxBodySize int64
	Timeout     time.Duration

	// Presets are literal tokens per directive name, added verbatim.
	Presets map[string][]string
	// BlockHosts are extra hostname glob patterns rejected by the SSRF guard.
	BlockHosts []string

	Headers   map[string]string
	UserAgent string

	Client    *http.Client
	Resolver  HostResolver
	Extractor Extractor
	Logger    Logger
}

const (
	DefaultMaxBodySize int64 = 5 * 1024 * 1024
	DefaultTimeout           = 10 * time.Second
	DefaultUserAgent         = "csp-generator/" + VERSION
)

// DefaultOptions returns the fail-closed defaults.
func DefaultOptions() Options {
	return Options{
		UseHashes:               true,
		UseStrictDynamic:        true,
		UpgradeInsecureRequests: true,
		BlockMixedContent:       true,
		MaxBodySize:             DefaultMaxBodySize,
		Timeout:                 DefaultTimeout,
		UserAgent:               DefaultUserAgent,
	}
}

// State is a step of a single analysis.
type State string

const (
	StateCreated    State = "created"
	StateFetching   State = "fetching"
	StateParsing    State = "parsing"
	StateAssembling State = "assembling"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// DirectiveEntry is one serialized directive of a Result.
type DirectiveEntry struct {
	Name    Directive `json:"name"`
	Sources []string  `json:"sources"`
}

// Result is the outcome of one analysis.
type Result struct {
	URL        string           `json:"url"`
	Header     string           `json:"header"`
	Nonce      string           `json:"nonce,omitempty"`
	Existing   string           `json:"existing,omitempty"`
	Directives []DirectiveEntry `json:"directives"`
	Warnings   []string         `json:"warnings,omitempty"`
	State      State            `json:"state"`
}

// scanFlags are accumulated while scanning and read once by the assembler.
type scanFlags struct {
	InlineScript bool
	InlineStyle  bool
	Eval         bool
}
