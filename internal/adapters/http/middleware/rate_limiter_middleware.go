// Package middleware disponibiliza middlewares HTTP específicos da aplicação.
package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/keenbingwood-bot/redflag2601/internal/core/domain"
	"github.com/keenbingwood-bot/redflag2601/internal/core/ports"
)

const (
	rateLimitExceededMessage = "Rate limit exceeded. Please wait a few minutes before trying again."
	storeUnavailableMessage  = "Rate limiting is temporarily unavailable. Please try again shortly."
	DefaultAPIPrefix         = "/api/"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	resetTimestampLayout     = "2006-01-02T15:04:05.000Z"
)

type rateLimitBody struct {
	Error     string `json:"error"`
	Limit     int    `json:"limit"`
	Reset     string `json:"reset"`
	Remaining int    `json:"remaining"`
}

type errorBody struct {
	Error string `json:"error"`
}

// NewRateLimiterMiddleware limita apenas as rotas sob apiPrefix. Prefixo vazio usa DefaultAPIPrefix.
func NewRateLimiterMiddleware(admission ports.Admission, apiPrefix string) func(http.Handler) http.Handler {
	if apiPrefix == "" {
		apiPrefix = DefaultAPIPrefix
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if admission == nil || !strings.HasPrefix(r.URL.Path, apiPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			identity := ExtractIdentity(r)

			decision, err := admission.Admit(r.Context(), identity)
			if err != nil {
				entry := log.WithError(err).WithFields(log.Fields{
					"identity": identity,
					"bucket":   decision.Bucket,
					"path":     r.URL.Path,
				})
				if decision.Admitted {
					entry.Warn("rate limiter store unavailable, admitting request")
					next.ServeHTTP(w, r)
					return
				}
				entry.Warn("rate limiter store unavailable, rejecting request")
				writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: storeUnavailableMessage})
				return
			}

			if !decision.Admitted {
				writeTooManyRequests(w, decision)
				return
			}

			hw := &headerWriter{ResponseWriter: w, decision: decision}
			next.ServeHTTP(hw, r)
			hw.finish()
		})
	}
}

// ExtractIdentity usa o primeiro valor de X-Forwarded-For, depois X-Real-IP, senão a sentinela anônima.
func ExtractIdentity(r *http.Request) string {
	if xForwardedFor := r.Header.Get("X-Forwarded-For"); xForwardedFor != "" {
		first, _, _ := strings.Cut(xForwardedFor, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xRealIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); xRealIP != "" {
		return xRealIP
	}

	return domain.AnonymousIdentity
}

// FormatReset formata o reset como ISO-8601 em UTC com milissegundos.
func FormatReset(t time.Time) string {
	return t.UTC().Format(resetTimestampLayout)
}

func setRateLimitHeaders(h http.Header, decision domain.Decision) {
	h.Set(HeaderRateLimitLimit, strconv.Itoa(decision.Capacity))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
	h.Set(HeaderRateLimitReset, FormatReset(decision.Reset))
}

func writeTooManyRequests(w http.ResponseWriter, decision domain.Decision) {
	setRateLimitHeaders(w.Header(), decision)
	writeJSON(w, http.StatusTooManyRequests, rateLimitBody{
		Error:     rateLimitExceededMessage,
		Limit:     decision.Capacity,
		Reset:     FormatReset(decision.Reset),
		Remaining: decision.Remaining,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// headerWriter aplica os cabeçalhos de rate limit na resposta de saída, imediatamente antes do
// status ser enviado, para que o handler seguinte não os sobrescreva.
type headerWriter struct {
	http.ResponseWriter
	decision    domain.Decision
	wroteHeader bool
}

func (hw *headerWriter) WriteHeader(status int) {
	if !hw.wroteHeader {
		hw.wroteHeader = true
		setRateLimitHeaders(hw.ResponseWriter.Header(), hw.decision)
	}
	hw.ResponseWriter.WriteHeader(status)
}

func (hw *headerWriter) Write(b []byte) (int, error) {
	if !hw.wroteHeader {
		hw.WriteHeader(http.StatusOK)
	}
	return hw.ResponseWriter.Write(b)
}

func (hw *headerWriter) Flush() {
	if !hw.wroteHeader {
		hw.WriteHeader(http.StatusOK)
	}
	if f, ok := hw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (hw *headerWriter) Unwrap() http.ResponseWriter {
	return hw.ResponseWriter
}

// finish cobre handlers que não escrevem nada: o net/http envia os cabeçalhos ao final.
func (hw *headerWriter) finish() {
	if !hw.wroteHeader {
		setRateLimitHeaders(hw.ResponseWriter.Header(), hw.decision)
	}
}
