package generate

import "github.com/pkg/errors"

var (
	ErrEmptyURL       = errors.New("target url is empty")
	ErrInvalidURL     = errors.New("target url is invalid")
	ErrInsecureScheme = errors.New("insecure scheme not allowed")
	ErrPrivateTarget  = errors.New("private network address not allowed")
	ErrStatus         = errors.New("unexpected response status")
	ErrBodyTooLarge   = errors.New("response body exceeds size limit")
	ErrTimeout        = errors.New("request timed out")
	ErrFetch          = errors.New("fetch failed")
	ErrParse          = errors.New("html parse failed")
	ErrResolve        = errors.New("hostname lookup failed")
)
