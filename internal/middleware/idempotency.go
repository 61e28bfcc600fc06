package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"corebank/pkg/cache"
	"corebank/pkg/errors"
	"corebank/pkg/logger"
)

// ResponseCache holds idempotency locks and replayable responses.
// *cache.RedisCache satisfies it; Get returns cache.ErrMiss for absent keys.
type ResponseCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// IdempotencyMiddleware enforces Idempotency-Key usage for unsafe methods.
type IdempotencyMiddleware struct {
	cache  ResponseCache
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
	logger logger.Logger
}

// NewIdempotencyMiddleware constructs an IdempotencyMiddleware with a TTL.
func NewIdempotencyMiddleware(c ResponseCache, ttl time.Duration, log logger.Logger) *IdempotencyMiddleware {
	return &IdempotencyMiddleware{
		cache:  c,
		ttl:    ttl,
		wait:   5 * time.Second,
		poll:   100 * time.Millisecond,
		logger: log,
	}
}

// Require blocks duplicate POST/PUT requests with the same key. Keys are
// scoped to the authenticated user, so it must run after Authenticate. A
// request that arrives while the first is still running waits for its
// response and replays it.
func (m *IdempotencyMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			jsonError(w, http.StatusBadRequest, "Idempotency-Key header required")
			return
		}
		if len(key) > 128 {
			jsonError(w, http.StatusBadRequest, "Idempotency-Key too long")
			return
		}

		principal := "anonymous"
		if userID, ok := UserIDFromContext(r.Context()); ok {
			principal = userID.String()
		}
		dataKey := fmt.Sprintf("idempotency:data:%s:%s:%s", principal, r.Method, key)
		lockKey := fmt.Sprintf("idempotency:lock:%s:%s:%s", principal, r.Method, key)

		if m.replayCached(w, r, dataKey) {
			return
		}

		ok, err := m.cache.SetNX(r.Context(), lockKey, RequestIDFromContext(r.Context()), m.ttl)
		if err != nil {
			m.logger.Error("Idempotency lock failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
			jsonError(w, http.StatusServiceUnavailable, "Unable to process request")
			return
		}

		if !ok {
			deadline := time.Now().Add(m.wait)
			for time.Now().Before(deadline) {
				select {
				case <-r.Context().Done():
					return
				case <-time.After(m.poll):
				}
				if m.replayCached(w, r, dataKey) {
					return
				}
			}
			jsonError(w, http.StatusConflict, errors.ErrDuplicateRequest.Error())
			return
		}
		defer func() { _ = m.cache.Delete(context.WithoutCancel(r.Context()), lockKey) }()

		cw := newCaptureWriter(w, 1<<20)
		next.ServeHTTP(cw, r)

		// 5xx responses are not replayed so the client can retry.
		if cw.status >= http.StatusInternalServerError {
			return
		}
		if err := m.cacheResponse(r, dataKey, cw); err != nil {
			m.logger.Warn("Idempotency response not cached", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	})
}

type capturedResponse struct {
	Status  int               `json:"status"`
	Body    []byte            `json:"body"`
	Headers map[string]string `json:"headers"`
}

func (m *IdempotencyMiddleware) replayCached(w http.ResponseWriter, r *http.Request, dataKey string) bool {
	var cr capturedResponse
	if err := m.cache.Get(r.Context(), dataKey, &cr); err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			m.logger.Warn("Idempotency lookup failed", map[string]interface{}{"error": err.Error()})
		}
		return false
	}

	for k, v := range cr.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(cr.Status)
	_, _ = w.Write(cr.Body)
	return true
}

func (m *IdempotencyMiddleware) cacheResponse(r *http.Request, dataKey string, cw *captureWriter) error {
	if cw.status == 0 || len(cw.buf) == 0 || cw.truncated {
		return nil
	}
	return m.cache.Set(context.WithoutCancel(r.Context()), dataKey, capturedResponse{
		Status:  cw.status,
		Body:    cw.buf,
		Headers: cw.headers,
	}, m.ttl)
}

type captureWriter struct {
	http.ResponseWriter
	buf       []byte
	limit     int
	truncated bool
	status    int
	headers   map[string]string
}

func newCaptureWriter(w http.ResponseWriter, limit int) *captureWriter {
	return &captureWriter{
		ResponseWriter: w,
		buf:            make([]byte, 0, 1024),
		limit:          limit,
		headers:        make(map[string]string),
	}
}

func (w *captureWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	for k, v := range w.ResponseWriter.Header() {
		if len(v) > 0 {
			w.headers[k] = v[0]
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	if space := w.limit - len(w.buf); space >= len(p) {
		w.buf = append(w.buf, p...)
	} else {
		w.truncated = true
	}
	return w.ResponseWriter.Write(p)
}
