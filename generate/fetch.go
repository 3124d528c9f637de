package generate

import (
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

const (
	maxRedirects    = 10
	maxMetaRefresh  = 3
	readChunkSize   = 32 * 1024
	dialTimeout     = 30 * time.Second
	dialerKeepAlive = 30 * time.Second
)

type fetchedPage struct {
	url         *url.URL
	body        []byte
	contentType string
	existing    string
}

// targetSchemeAllowed is the scheme rule for pages that are fetched.
func targetSchemeAllowed(scheme string, allowHTTP bool) bool {
	switch strings.ToLower(scheme) {
	case "https":
		return true
	case "http":
		return allowHTTP
	}
	return false
}

// NewHTTPClient builds the client Generate uses when Options.Client is
// nil; generators with the same AllowHTTP and AllowPrivateOrigins may share
// one. Unless private origins are allowed, every dialed address is checked
// so a redirect or a rebinding answer cannot reach the private network.
func NewHTTPClient(opts Options) *http.Client {
	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: dialerKeepAlive,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !opts.AllowPrivateOrigins {
		dialer.Control = func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
				return errors.Wrapf(ErrPrivateTarget, "dial %s", host)
			}
			return nil
		}
		transport.Proxy = nil
	}
	transport.DialContext = dialer.DialContext

	allowHTTP := opts.AllowHTTP
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.Errorf("stopped after %d redirects", maxRedirects)
			}
			if !targetSchemeAllowed(req.URL.Scheme, allowHTTP) {
				return errors.Wrapf(ErrInsecureScheme, "redirect to %s", req.URL)
			}
			return nil
		},
	}
}

// fetch retrieves target, enforcing the body limit while reading.
func (g *Generator) fetch(ctx context.Context, target *url.URL) (*fetchedPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(ErrFetch, "creating request: %v", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	if g.opts.UserAgent != "" {
		req.Header.Set("User-Agent", g.opts.UserAgent)
	}
	for key, value := range g.opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, classifyFetchError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrapf(ErrStatus, "%s returned %d", target, resp.StatusCode)
	}
	if g.opts.MaxBodySize > 0 && resp.ContentLength > g.opts.MaxBodySize {
		return nil, errors.Wrapf(ErrBodyTooLarge, "content-length %d > %d", resp.ContentLength, g.opts.MaxBodySize)
	}

	body, err := readBounded(resp.Body, g.opts.MaxBodySize)
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			return nil, err
		}
		return nil, classifyFetchError(ctx, err)
	}

	page := &fetchedPage{
		url:         resp.Request.URL,
		body:        body,
		contentType: resp.Header.Get("Content-Type"),
		existing:    resp.Header.Get("Content-Security-Policy"),
	}
	return page, nil
}

// readBounded reads r until EOF and fails as soon as more than limit bytes
// have arrived. A limit of 0 disables the check.
func readBounded(r io.Reader, limit int64) ([]byte, error) {
	var body []byte
	var total int64
	chunk := make([]byte, readChunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			total += int64(n)
			if limit > 0 && total > limit {
				return nil, errors.Wrapf(ErrBodyTooLarge, "read %d bytes, limit %d", total, limit)
			}
			body = append(body, chunk[:n]...)
		}
		if err == io.EOF {
			return body, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func classifyFetchError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(ErrTimeout, err.Error())
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return errors.Wrap(ErrTimeout, "request cancelled")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrap(ErrTimeout, err.Error())
	}
	switch {
	case errors.Is(err, ErrPrivateTarget):
		return errors.Wrap(ErrPrivateTarget, err.Error())
	case errors.Is(err, ErrInsecureScheme):
		return errors.Wrap(ErrInsecureScheme, err.Error())
	}
	return errors.Wrap(ErrFetch, err.Error())
}

// isHTML reports whether the declared or sniffed type of a body is HTML.
func isHTML(contentType string, body []byte) bool {
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			return mediaType == "text/html" || mediaType == "application/xhtml+xml"
		}
	}
	detected := mimetype.Detect(body)
	return detected.Is("text/html") || detected.Is("application/xhtml+xml")
}

// metaRefreshTarget returns the absolute URL of a meta refresh in doc.
func metaRefreshTarget(doc Document, page *url.URL) (*url.URL, bool) {
	for _, el := range doc.Find("meta[http-equiv]") {
		equiv, _ := el.Attr("http-equiv")
		if !strings.EqualFold(strings.TrimSpace(equiv), "refresh") {
			continue
		}
		content, _ := el.Attr("content")
		for _, part := range strings.Split(content, ";") {
			part = strings.TrimSpace(part)
			if len(part) > 4 && strings.EqualFold(part[:4], "url=") {
				raw := strings.Trim(strings.TrimSpace(part[4:]), `"'`)
				ref, err := url.Parse(raw)
				if err != nil {
					return nil, false
				}
				return page.ResolveReference(ref), true
			}
		}
	}
	return nil, false
}
