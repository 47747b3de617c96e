package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/digistore-backend/api/responses"
	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
)

// CounterStore increments a windowed counter; the first hit sets the TTL.
type CounterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// KeyFunc derives the bucket a request counts against. An empty key skips
// that limit for the request.
type KeyFunc func(r *http.Request, body []byte) string

// Limit caps requests per bucket within the policy window.
type Limit struct {
	Scope     string
	Max       int
	Key       KeyFunc
	NeedsBody bool
}

// ThrottlePolicy groups limits that share a window, e.g. "login".
type ThrottlePolicy struct {
	Name   string
	Window time.Duration
	Limits []Limit
}

// PerIP buckets by client address.
func PerIP(n int) Limit {
	return Limit{Scope: "ip", Max: n, Key: func(r *http.Request, _ []byte) string { return clientIP(r) }}
}

// PerEmail buckets by the hashed "email" field of a JSON body, so repeated
// guesses against one account are capped across addresses.
func PerEmail(n int) Limit {
	return Limit{Scope: "email", Max: n, NeedsBody: true, Key: emailBucket}
}

func (p ThrottlePolicy) active() []Limit {
	if p.Window <= 0 {
		return nil
	}
	out := make([]Limit, 0, len(p.Limits))
	for _, l := range p.Limits {
		if l.Max > 0 && l.Key != nil {
			out = append(out, l)
		}
	}
	return out
}

func (p ThrottlePolicy) bucketScope(scope, bucket string) string {
	name := strings.ToLower(strings.TrimSpace(p.Name))
	if name == "" {
		name = "default"
	}
	return scope + ":" + name + ":" + bucket
}

// Throttle rejects requests over any of the policy's limits with 429 and a
// Retry-After hint. A nil store or an empty policy disables it.
func Throttle(policy ThrottlePolicy, store CounterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	limits := policy.active()
	needsBody := false
	for _, l := range limits {
		needsBody = needsBody || l.NeedsBody
	}

	return func(next http.Handler) http.Handler {
		if len(limits) == 0 || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var body []byte
			if needsBody {
				var err error
				if body, err = io.ReadAll(io.LimitReader(r.Body, 64<<10)); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			for _, l := range limits {
				bucket := l.Key(r, body)
				if bucket == "" {
					continue
				}
				count, err := store.IncrWithTTL(ctx, store.RateLimitKey(policy.bucketScope(l.Scope, bucket)), policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiter unavailable"))
					return
				}
				if count > int64(l.Max) {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"policy":   policy.Name,
							"scope":    l.Scope,
							"bucket":   bucket,
							"attempts": count,
							"limit":    l.Max,
						}), "throttle.blocked")
					}
					w.Header().Set("Retry-After", strconv.Itoa(int(policy.Window.Round(time.Second).Seconds())))
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the left-most X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func emailBucket(_ *http.Request, body []byte) string {
	var payload struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:12])
}
