package middleware

import (
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/wencestudios/freelancehub/internal/domain"
	"github.com/wencestudios/freelancehub/internal/handler/respond"
)

// DefaultMaxBodyBytes bounds request bodies; the largest payload is a job description.
const DefaultMaxBodyBytes = 1 << 20

var suspiciousQueryChars = []string{"<", ">", "\"", "'", "`"}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return r.ContentLength != 0
	}
	return false
}

// ValidateJSONContentType rejects write requests whose body is not JSON.
// Bodyless writes (logout, accept, read-all) pass through.
func ValidateJSONContentType(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasBody(r) {
				next.ServeHTTP(w, r)
				return
			}
			contentType := r.Header.Get("Content-Type")
			if mediaType, _, err := mime.ParseMediaType(contentType); err != nil || mediaType != "application/json" {
				log.Warn("invalid content type",
					slog.String("path", r.URL.Path),
					slog.String("content_type", contentType),
					slog.String("method", r.Method),
				)
				respond.Message(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "Content-Type must be application/json")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LimitBody caps the readable body at maxBytes. Decoding past the cap fails
// and surfaces as a bad request.
func LimitBody(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				respond.Message(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func suspiciousValue(v string) (string, bool) {
	for _, c := range suspiciousQueryChars {
		if strings.Contains(v, c) {
			return c, true
		}
	}
	return "", false
}

// SanitizeInputs rejects markup in query parameters and traversal in paths.
func SanitizeInputs(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.URL.Path, "..") || strings.Contains(r.URL.Path, "//") {
				log.Warn("suspicious path pattern detected", slog.String("path", r.URL.Path))
				respond.Message(w, http.StatusBadRequest, domain.ErrInvalidInput.Code, "invalid path")
				return
			}
			for key, values := range r.URL.Query() {
				for _, v := range values {
					if c, bad := suspiciousValue(v); bad {
						log.Warn("suspicious input detected",
							slog.String("path", r.URL.Path),
							slog.String("param", key),
							slog.String("pattern", c),
						)
						respond.Message(w, http.StatusBadRequest, domain.ErrInvalidInput.Code, "invalid input: dangerous characters detected")
						return
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
