package generate

import (
	"encoding/base64"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

// seedStore creates the store every analysis starts from: the mandatory
// defaults, the framing and sandbox toggles, then the presets in
// vocabulary order.
func seedStore(opts *Options, log Logger) *directiveStore {
	store := newDirectiveStore()
	store.add(DefaultSrc, Self)
	store.add(ObjectSrc, None)
	if opts.RestrictFraming {
		store.add(FrameAncestors, None)
	}
	if opts.UseSandbox {
		store.ensure(Sandbox)
	}
	for name := range opts.Presets {
		if _, ok := ParseDirective(name); !ok {
			log.Warnf("ignoring preset for unknown directive %q", name)
		}
	}
	for _, d := range Directives {
		if tokens, ok := opts.Presets[string(d)]; ok {
			store.add(d, tokens...)
		}
	}
	return store
}

// newNonce returns a random base64 nonce value.
func newNonce() (string, error) {
	unique, err := uuid.NewV4()
	if err != nil {
		return "", errors.Wrap(err, "generating nonce")
	}
	return base64.StdEncoding.EncodeToString(unique.Bytes()), nil
}

// assemble applies the post-scan adjustments in their fixed order and
// returns the nonce it added, if any.
func assemble(store *directiveStore, flags scanFlags, opts *Options, warnf func(string, ...interface{})) (nonce string, err error) {
	if opts.UseNonce {
		if nonce, err = newNonce(); err != nil {
			return "", err
		}
		store.add(ScriptSrc, NonceSource(nonce))
		if opts.UseStrictDynamic {
			store.add(ScriptSrc, StrictDynamic)
			if opts.StrictDynamicInlineFallback {
				store.add(ScriptSrc, UnsafeInline)
			}
		}
	}

	if flags.InlineScript && opts.AllowUnsafeInlineScript {
		store.add(ScriptSrc, UnsafeInline)
	}

	if flags.InlineStyle && opts.AllowUnsafeInlineStyle {
		store.add(StyleSrc, UnsafeInline)
	}

	if opts.AllowUnsafeEval {
		store.add(ScriptSrc, UnsafeEval)
	} else if flags.Eval {
		warnf("page appears to use eval-like constructs which the policy will block")
	}

	if opts.RequireTrustedTypes {
		store.set(RequireTrustedTypesFor, TrustedScripts)
	}

	if opts.UpgradeInsecureRequests {
		store.ensure(UpgradeInsecureRequests)
	}
	if opts.BlockMixedContent {
		store.ensure(BlockAllMixedContent)
	}

	if len(store.get(DefaultSrc)) == 0 {
		store.set(DefaultSrc, None)
	}
	return nonce, nil
}
