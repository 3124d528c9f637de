package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/secinto/csp-generator/generate"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
	contentTypeText   = "text/plain; charset=utf-8"
)

// NewRouter exposes the generator over HTTP. Every request runs its own
// analysis with opts; the HTTP client is shared.
func NewRouter(opts generate.Options, log logrus.FieldLogger) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log
	}
	if opts.Client == nil {
		opts.Client = generate.NewHTTPClient(opts)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthzHandler)
	r.Get("/policy", policyHandler(opts))
	return r
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": generate.VERSION})
}

// policyHandler serves GET /policy?url=<target>&format=<json|header|raw>.
func policyHandler(opts generate.Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format := r.URL.Query().Get("format")
		if format == "" {
			format = generate.FormatJSON
		}

		g, err := generate.NewGenerator(r.URL.Query().Get("url"), opts)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err := g.Generate(r.Context())
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}

		out, err := result.Format(format)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if format == generate.FormatJSON {
			w.Header().Set(headerContentType, contentTypeJSON)
		} else {
			w.Header().Set(headerContentType, contentTypeText)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(out))
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, generate.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, generate.ErrInsecureScheme), errors.Is(err, generate.ErrPrivateTarget):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
			}).Info("request")
		})
	}
}
