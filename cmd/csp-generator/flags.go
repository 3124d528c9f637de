package main

import (
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/secinto/csp-generator/generate"
)

type boolSetting struct {
	name  string
	usage string
	field func(s *generate.Settings) *bool
}

var boolSettings = []boolSetting{
	{"allow-http", "allow http:// origins and targets", func(s *generate.Settings) *bool { return &s.AllowHTTP }},
	{"allow-private-origins", "allow loopback, private and .local origins", func(s *generate.Settings) *bool { return &s.AllowPrivateOrigins }},
	{"allow-unsafe-inline-script", "add 'unsafe-inline' to script-src when inline scripts exist", func(s *generate.Settings) *bool { return &s.AllowUnsafeInlineScript }},
	{"allow-unsafe-inline-style", "add 'unsafe-inline' to style-src when inline styles exist", func(s *generate.Settings) *bool { return &s.AllowUnsafeInlineStyle }},
	{"allow-unsafe-eval", "add 'unsafe-eval' to script-src", func(s *generate.Settings) *bool { return &s.AllowUnsafeEval }},
	{"require-trusted-types", "add require-trusted-types-for 'script'", func(s *generate.Settings) *bool { return &s.RequireTrustedTypes }},
	{"use-nonce", "add a generated nonce to script-src", func(s *generate.Settings) *bool { return &s.UseNonce }},
	{"use-hashes", "hash inline scripts without nonce or integrity", func(s *generate.Settings) *bool { return &s.UseHashes }},
	{"use-strict-dynamic", "add 'strict-dynamic' next to the generated nonce", func(s *generate.Settings) *bool { return &s.UseStrictDynamic }},
	{"strict-dynamic-inline-fallback", "add 'unsafe-inline' next to 'strict-dynamic' for older browsers", func(s *generate.Settings) *bool { return &s.StrictDynamicInlineFallback }},
	{"upgrade-insecure-requests", "emit upgrade-insecure-requests", func(s *generate.Settings) *bool { return &s.UpgradeInsecureRequests }},
	{"block-mixed-content", "emit block-all-mixed-content", func(s *generate.Settings) *bool { return &s.BlockMixedContent }},
	{"restrict-framing", "emit frame-ancestors 'none'", func(s *generate.Settings) *bool { return &s.RestrictFraming }},
	{"use-sandbox", "emit sandbox", func(s *generate.Settings) *bool { return &s.UseSandbox }},
	{"skip-unresolvable", "exclude origins whose hostname fails to resolve instead of failing", func(s *generate.Settings) *bool { return &s.SkipUnresolvable }},
	{"follow-meta-refresh", "follow <meta http-equiv=refresh> redirects", func(s *generate.Settings) *bool { return &s.FollowMetaRefresh }},
}

func policyFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "settings file (.yaml or .toml)",
		},
		&cli.Int64Flag{
			Name:  "max-body-size",
			Usage: "response body limit in bytes, 0 for unlimited",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "fetch timeout",
		},
		&cli.StringFlag{
			Name:  "user-agent",
			Usage: "User-Agent request header",
		},
		&cli.StringSliceFlag{
			Name:  "header",
			Usage: "extra request header as 'Name: value'",
		},
		&cli.StringSliceFlag{
			Name:  "block-host",
			Usage: "extra hostname glob rejected as an origin",
		},
		&cli.StringSliceFlag{
			Name:  "preset",
			Usage: "literal sources as 'directive=token token ...'",
		},
	}
	for _, b := range boolSettings {
		flags = append(flags, &cli.BoolFlag{Name: b.name, Usage: b.usage})
	}
	return flags
}

// loadSettings layers defaults, the settings file, the environment and
// explicitly set flags, in that order.
func loadSettings(ctx *cli.Context) (settings generate.Settings, err error) {
	settings = generate.DefaultSettings()
	if path := ctx.String("config"); path != "" {
		if settings, err = generate.LoadSettings(path); err != nil {
			return
		}
	}
	if err = settings.ApplyEnv(generate.EnvPrefix); err != nil {
		return
	}

	for _, b := range boolSettings {
		if ctx.IsSet(b.name) {
			*b.field(&settings) = ctx.Bool(b.name)
		}
	}
	if ctx.IsSet("max-body-size") {
		settings.MaxBodySize = ctx.Int64("max-body-size")
	}
	if ctx.IsSet("timeout") {
		settings.TimeoutMs = int(ctx.Duration("timeout") / time.Millisecond)
	}
	if ctx.IsSet("user-agent") {
		settings.UserAgent = ctx.String("user-agent")
	}
	for _, header := range ctx.StringSlice("header") {
		if name, value, ok := strings.Cut(header, ":"); ok {
			if settings.Headers == nil {
				settings.Headers = make(map[string]string)
			}
			settings.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}
	settings.BlockHosts = append(settings.BlockHosts, ctx.StringSlice("block-host")...)
	for _, preset := range ctx.StringSlice("preset") {
		if name, tokens, ok := strings.Cut(preset, "="); ok {
			if settings.Presets == nil {
				settings.Presets = make(map[string][]string)
			}
			name = strings.TrimSpace(name)
			settings.Presets[name] = append(settings.Presets[name], strings.Fields(tokens)...)
		}
	}
	return
}
