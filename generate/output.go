package generate

import (
	"encoding/json"

	"github.com/pkg/errors"
)

const (
	FormatHeader = "header"
	FormatJSON   = "json"
	FormatRaw    = "raw"
)

// HeaderName is the response header the policy is meant for.
const HeaderName = "Content-Security-Policy"

// Format renders the result as a header line, a JSON document or the bare
// header value.
func (r *Result) Format(format string) (string, error) {
	switch format {
	case FormatHeader, "":
		return HeaderName + ": " + r.Header, nil
	case FormatRaw:
		return r.Header, nil
	case FormatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return "", errors.Wrap(err, "encoding result")
		}
		return string(data), nil
	}
	return "", errors.Errorf("unknown output format %q", format)
}
