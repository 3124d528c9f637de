package generate

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// HashSource returns the 'sha256-...' token for inline content. The digest
// covers exactly the bytes of content.
func HashSource(content string) string {
	sum := sha256.Sum256([]byte(content))
	return "'sha256-" + base64.StdEncoding.EncodeToString(sum[:]) + "'"
}

// NonceSource returns the 'nonce-...' token for a nonce value.
func NonceSource(nonce string) string {
	return "'nonce-" + nonce + "'"
}

// classifyInlineScript picks the script-src tokens allowing one inline
// script: its nonce, else its integrity value, else a hash of its trimmed
// text. A script with empty text yields nothing.
func classifyInlineScript(el Element, useHashes bool) ([]string, bool) {
	text := strings.TrimSpace(el.Text())
	if text == "" {
		return nil, false
	}
	if nonce, ok := el.Attr("nonce"); ok {
		return []string{NonceSource(strings.TrimSpace(nonce))}, true
	}
	if integrity, ok := el.Attr("integrity"); ok && strings.TrimSpace(integrity) != "" {
		return []string{"'" + strings.TrimSpace(integrity) + "'"}, true
	}
	if useHashes {
		return []string{HashSource(text)}, true
	}
	return nil, true
}
