package generate

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables read by ApplyEnv.
const EnvPrefix = "CSPGEN"

// Settings is the file and environment form of Options.
type Settings struct {
	AllowHTTP                   bool   `yaml:"allow_http" toml:"allow_http" split_words:"true"`
	AllowPrivateOrigins         bool   `yaml:"allow_private_origins" toml:"allow_private_origins" split_words:"true"`
	AllowUnsafeInlineScript     bool   `yaml:"allow_unsafe_inline_script" toml:"allow_unsafe_inline_script" split_words:"true"`
	AllowUnsafeInlineStyle      bool   `yaml:"allow_unsafe_inline_style" toml:"allow_unsafe_inline_style" split_words:"true"`
	AllowUnsafeEval             bool   `yaml:"allow_unsafe_eval" toml:"allow_unsafe_eval" split_words:"true"`
	RequireTrustedTypes         bool   `yaml:"require_trusted_types" toml:"require_trusted_types" split_words:"true"`
	UseNonce                    bool   `yaml:"use_nonce" toml:"use_nonce" split_words:"true"`
	UseHashes                   bool   `yaml:"use_hashes" toml:"use_hashes" split_words:"true"`
	UseStrictDynamic            bool   `yaml:"use_strict_dynamic" toml:"use_strict_dynamic" split_words:"true"`
	StrictDynamicInlineFallback bool   `yaml:"strict_dynamic_inline_fallback" toml:"strict_dynamic_inline_fallback" split_words:"true"`
	UpgradeInsecureRequests     bool   `yaml:"upgrade_insecure_requests" toml:"upgrade_insecure_requests" split_words:"true"`
	BlockMixedContent           bool   `yaml:"block_mixed_content" toml:"block_mixed_content" split_words:"true"`
	RestrictFraming             bool   `yaml:"restrict_framing" toml:"restrict_framing" split_words:"true"`
	UseSandbox                  bool   `yaml:"use_sandbox" toml:"use_sandbox" split_words:"true"`
	SkipUnresolvable            bool   `yaml:"skip_unresolvable" toml:"skip_unresolvable" split_words:"true"`
	FollowMetaRefresh           bool   `yaml:"follow_meta_refresh" toml:"follow_meta_refresh" split_words:"true"`
	MaxBodySize                 int64  `yaml:"max_body_size" toml:"max_body_size" split_words:"true"`
	TimeoutMs                   int    `yaml:"timeout_ms" toml:"timeout_ms" split_words:"true"`
	UserAgent                   string `yaml:"user_agent" toml:"user_agent" split_words:"true"`

	BlockHosts []string            `yaml:"block_hosts" toml:"block_hosts" split_words:"true"`
	Headers    map[string]string   `yaml:"headers" toml:"headers" split_words:"true"`
	Presets    map[string][]string `yaml:"presets" toml:"presets" ignored:"true"`
}

// DefaultSettings mirrors DefaultOptions.
func DefaultSettings() Settings {
	return Settings{
		UseHashes:               true,
		UseStrictDynamic:        true,
		UpgradeInsecureRequests: true,
		BlockMixedContent:       true,
		MaxBodySize:             DefaultMaxBodySize,
		TimeoutMs:               int(DefaultTimeout / time.Millisecond),
		UserAgent:               DefaultUserAgent,
	}
}

// LoadSettings reads a YAML or TOML settings file on top of the defaults.
// The format is chosen by extension; anything but .toml is read as YAML.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, errors.Wrapf(err, "reading settings %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err = toml.Decode(string(data), &s); err != nil {
			return s, errors.Wrapf(err, "decoding toml settings %s", path)
		}
	default:
		if err = yaml.Unmarshal(data, &s); err != nil {
			return s, errors.Wrapf(err, "decoding yaml settings %s", path)
		}
	}
	return s, nil
}

// ApplyEnv overrides fields from environment variables named
// <prefix>_<FIELD>; unset variables leave the field untouched.
func (s *Settings) ApplyEnv(prefix string) error {
	if err := envconfig.Process(prefix, s); err != nil {
		return errors.Wrap(err, "reading environment settings")
	}
	return nil
}

// Options converts the settings into generator options.
func (s Settings) Options(logger Logger) Options {
	presets := make(map[string][]string, len(s.Presets))
	for name, tokens := range s.Presets {
		presets[strings.ToLower(strings.TrimSpace(name))] = lo.Uniq(tokens)
	}
	return Options{
		AllowHTTP:                   s.AllowHTTP,
		AllowPrivateOrigins:         s.AllowPrivateOrigins,
		AllowUnsafeInlineScript:     s.AllowUnsafeInlineScript,
		AllowUnsafeInlineStyle:      s.AllowUnsafeInlineStyle,
		AllowUnsafeEval:             s.AllowUnsafeEval,
		RequireTrustedTypes:         s.RequireTrustedTypes,
		UseNonce:                    s.UseNonce,
		UseHashes:                   s.UseHashes,
		UseStrictDynamic:            s.UseStrictDynamic,
		StrictDynamicInlineFallback: s.StrictDynamicInlineFallback,
		UpgradeInsecureRequests:     s.UpgradeInsecureRequests,
		BlockMixedContent:           s.BlockMixedContent,
		RestrictFraming:             s.RestrictFraming,
		UseSandbox:                  s.UseSandbox,
		SkipUnresolvable:            s.SkipUnresolvable,
		FollowMetaRefresh:           s.FollowMetaRefresh,
		MaxBodySize:                 s.MaxBodySize,
		Timeout:                     time.Duration(s.TimeoutMs) * time.Millisecond,
		UserAgent:                   s.UserAgent,
		BlockHosts:                  lo.Uniq(s.BlockHosts),
		Headers:                     s.Headers,
		Presets:                     presets,
		Logger:                      logger,
	}
}
