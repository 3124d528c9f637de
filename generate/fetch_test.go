package generate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func localOptions() Options {
	opts := testOptions(newStubResolver())
	opts.AllowHTTP = true
	opts.AllowPrivateOrigins = true
	return opts
}

func TestGenerateFetchesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "yes" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		fmt.Fprint(w, `<html><head><script src="https://cdn.example.com/a.js"></script></head></html>`)
	}))
	defer srv.Close()

	opts := localOptions()
	opts.Headers = map[string]string{"X-Test": "yes"}
	g, err := NewGenerator(srv.URL, opts)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	result, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(result.Header, "script-src https://cdn.example.com") {
		t.Errorf("header = %s", result.Header)
	}
	if result.Existing != "default-src 'self'" {
		t.Errorf("existing = %q", result.Existing)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings %v", result.Warnings)
	}
}

func TestGenerateBodyTooLarge(t *testing.T) {
	body := `<html>` + strings.Repeat("x", 494) + `</html>`

	t.Run("content length", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, body)
		}))
		defer srv.Close()

		opts := localOptions()
		opts.MaxBodySize = 100
		g, err := NewGenerator(srv.URL, opts)
		if err != nil {
			t.Fatalf("NewGenerator: %v", err)
		}
		result, err := g.Generate(context.Background())
		if !errors.Is(err, ErrBodyTooLarge) {
			t.Fatalf("expected ErrBodyTooLarge, got %v", err)
		}
		if result != nil {
			t.Errorf("no result expected on failure")
		}
	})

	t.Run("streamed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			flusher := w.(http.Flusher)
			for i := 0; i < 5; i++ {
				fmt.Fprint(w, body[i*100:(i+1)*100])
				flusher.Flush()
			}
		}))
		defer srv.Close()

		opts := localOptions()
		opts.MaxBodySize = 100
		g, err := NewGenerator(srv.URL, opts)
		if err != nil {
			t.Fatalf("NewGenerator: %v", err)
		}
		if _, err = g.Generate(context.Background()); !errors.Is(err, ErrBodyTooLarge) {
			t.Fatalf("expected ErrBodyTooLarge, got %v", err)
		}
	})
}

func TestReadBounded(t *testing.T) {
	if _, err := readBounded(strings.NewReader(strings.Repeat("a", 101)), 100); !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("expected ErrBodyTooLarge, got %v", err)
	}
	body, err := readBounded(strings.NewReader(strings.Repeat("a", 100)), 100)
	if err != nil || len(body) != 100 {
		t.Errorf("exact limit should pass: %d bytes, %v", len(body), err)
	}
	body, err = readBounded(strings.NewReader(strings.Repeat("a", 100000)), 0)
	if err != nil || len(body) != 100000 {
		t.Errorf("zero limit is unlimited: %d bytes, %v", len(body), err)
	}
}

func TestGenerateStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	g, err := NewGenerator(srv.URL, localOptions())
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	if _, err = g.Generate(context.Background()); !errors.Is(err, ErrStatus) {
		t.Fatalf("expected ErrStatus, got %v", err)
	}
}

func TestGenerateTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	opts := localOptions()
	opts.Timeout = 50 * time.Millisecond
	g, err := NewGenerator(srv.URL, opts)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	if _, err = g.Generate(context.Background()); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestGenerateRejectsPrivateTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html></html>`)
	}))
	defer srv.Close()

	opts := testOptions(newStubResolver())
	opts.AllowHTTP = true
	g, err := NewGenerator(srv.URL, opts)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	if _, err = g.Generate(context.Background()); !errors.Is(err, ErrPrivateTarget) {
		t.Fatalf("expected ErrPrivateTarget, got %v", err)
	}
}

func TestGenerateRedirectToInsecureScheme(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://insecure.example.com/", http.StatusFound)
	}))
	defer srv.Close()

	opts := testOptions(newStubResolver())
	opts.AllowPrivateOrigins = true
	g, err := NewGenerator(srv.URL, opts)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	g.client.Transport = srv.Client().Transport
	if _, err = g.Generate(context.Background()); !errors.Is(err, ErrInsecureScheme) {
		t.Fatalf("expected ErrInsecureScheme, got %v", err)
	}
}

func TestGenerateFollowsMetaRefresh(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><meta http-equiv="Refresh" content="0; url=/landing"></head></html>`)
	})
	mux.HandleFunc("/landing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><img src="https://img.example.com/a.png"></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	opts := localOptions()
	opts.FollowMetaRefresh = true
	g, err := NewGenerator(srv.URL, opts)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	result, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.URL != srv.URL+"/landing" {
		t.Errorf("url = %s, want %s/landing", result.URL, srv.URL)
	}
	if !containsToken(sources(result, ImgSrc), "https://img.example.com") {
		t.Errorf("header = %s", result.Header)
	}
}

func TestGenerateWarnsOnContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"html": false}`)
	}))
	defer srv.Close()

	g, err := NewGenerator(srv.URL, localOptions())
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	result, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "content-type") {
		t.Errorf("warnings = %v", result.Warnings)
	}
}

func TestIsHTML(t *testing.T) {
	tests := []struct {
		contentType string
		body        string
		want        bool
	}{
		{"text/html; charset=utf-8", "", true},
		{"application/xhtml+xml", "", true},
		{"application/json", "<html></html>", false},
		{"", "<!DOCTYPE html><html><body></body></html>", true},
		{"", "plain words", false},
	}
	for _, tt := range tests {
		if got := isHTML(tt.contentType, []byte(tt.body)); got != tt.want {
			t.Errorf("isHTML(%q, %q) = %v, want %v", tt.contentType, tt.body, got, tt.want)
		}
	}
}
