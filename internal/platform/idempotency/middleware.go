package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/plateful/api/internal/platform/auth"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
)

// Logger receives background persistence failures from the middleware.
type Logger interface {
	Printf(format string, args ...any)
}

type middlewareConfig struct {
	headerName string
	ttl        time.Duration
	methods    map[string]struct{}
	clock      func() time.Time
	logger     Logger
}

// MiddlewareOption customises middleware behaviour.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the request header carrying the idempotency key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.headerName = name
		}
	}
}

// WithTTL sets how long completed records stay replayable.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithMethods restricts which HTTP methods require a key.
func WithMethods(methods ...string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if len(methods) == 0 {
			return
		}
		cfg.methods = make(map[string]struct{}, len(methods))
		for _, method := range methods {
			if method = strings.ToUpper(strings.TrimSpace(method)); method != "" {
				cfg.methods[method] = struct{}{}
			}
		}
	}
}

// WithLogger injects a logger for store failures.
func WithLogger(logger Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.logger = logger
	}
}

// WithClock overrides the time source for tests.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

func mutatingMethods() map[string]struct{} {
	return map[string]struct{}{
		http.MethodPost:   {},
		http.MethodPut:    {},
		http.MethodPatch:  {},
		http.MethodDelete: {},
	}
}

// Middleware enforces idempotency for mutating requests: the first request
// with a key runs the handler and captures its response, replays return that
// response, and concurrent attempts get a conflict.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	cfg := middlewareConfig{
		headerName: defaultHeaderName,
		ttl:        DefaultTTL,
		methods:    mutatingMethods(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.ttl <= 0 {
		cfg.ttl = DefaultTTL
	}
	if len(cfg.methods) == 0 {
		cfg.methods = mutatingMethods()
	}
	if cfg.clock == nil {
		cfg.clock = time.Now
	}

	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cfg.serve(store, next, w, r)
		})
	}
}

func (cfg *middlewareConfig) serve(store Store, next http.Handler, w http.ResponseWriter, r *http.Request) {
	if _, guarded := cfg.methods[r.Method]; !guarded {
		next.ServeHTTP(w, r)
		return
	}

	key := strings.TrimSpace(r.Header.Get(cfg.headerName))
	if key == "" {
		writeJSONError(w, http.StatusBadRequest, "idempotency_key_required", "missing idempotency key header")
		return
	}

	body, err := bufferRequestBody(r)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "idempotency_read_body_failed", "unable to read request body")
		return
	}

	requester := requesterID(r.Context())
	fingerprint := fingerprintRequest(r, body, requester)
	scoped := scopeKey(key, requester)
	now := cfg.clock().UTC()

	reservation, err := store.Reserve(r.Context(), scoped, fingerprint, now, cfg.ttl)
	if err != nil {
		cfg.writeReserveError(w, err)
		return
	}

	switch reservation.State {
	case ReservationStateCompleted:
		replayResponse(w, reservation.Record)
		return
	case ReservationStatePending:
		writeJSONError(w, http.StatusConflict, "idempotency_in_progress", "another request is processing this idempotency key")
		return
	case ReservationStateNew:
	default:
		writeJSONError(w, http.StatusInternalServerError, "idempotency_unknown_state", "unexpected idempotency state")
		return
	}

	// Buffer the handler output so the response can be persisted before the
	// client sees it.
	recorder := newResponseRecorder(w)
	next.ServeHTTP(recorder, r)

	captured := Response{
		Status:  recorder.Status(),
		Headers: recorder.HeaderSnapshot(),
		Body:    recorder.Body(),
	}
	if err := store.SaveResponse(r.Context(), scoped, fingerprint, captured, cfg.clock().UTC(), cfg.ttl); err != nil {
		cfg.logf("idempotency: failed to persist response for key %s (requester %s): %v", key, requester, err)
		if releaseErr := store.Release(r.Context(), scoped, fingerprint); releaseErr != nil {
			cfg.logf("idempotency: failed to release key %s after save failure: %v", key, releaseErr)
		}
		writeJSONError(w, http.StatusInternalServerError, "idempotency_store_error", "unable to persist idempotency state")
		return
	}

	if err := recorder.Commit(); err != nil {
		cfg.logf("idempotency: failed to flush response for key %s: %v", key, err)
	}
}

func (cfg *middlewareConfig) logf(format string, args ...any) {
	if cfg.logger != nil {
		cfg.logger.Printf(format, args...)
	}
}

func (cfg *middlewareConfig) writeReserveError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrFingerprintMismatch) {
		writeJSONError(w, http.StatusConflict, "idempotency_key_conflict", "idempotency key already used for a different request")
		return
	}
	cfg.logf("idempotency: store error: %v", err)
	writeJSONError(w, http.StatusInternalServerError, "idempotency_store_error", "unable to process idempotency key")
}

func bufferRequestBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if err := r.Body.Close(); err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func fingerprintRequest(r *http.Request, body []byte, requester string) string {
	parts := []string{
		strings.ToUpper(r.Method),
		r.URL.Path,
		r.URL.RawQuery,
		r.Host,
		r.Header.Get("Content-Type"),
		requester,
	}
	if len(body) > 0 {
		parts = append(parts, hashHex(body))
	} else {
		parts = append(parts, "")
	}
	return hashHex([]byte(strings.Join(parts, "|")))
}

func requesterID(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && identity.UID != "" {
		return identity.UID
	}
	return "anonymous"
}

// scopeKey binds the key to the caller so two customers reusing the same
// header value never collide.
func scopeKey(key, requester string) string {
	key = strings.TrimSpace(key)
	requester = strings.TrimSpace(requester)
	if requester == "" {
		requester = "anonymous"
	}
	if key == "" {
		return requester
	}
	return key + "|" + requester
}

func replayResponse(w http.ResponseWriter, record Record) {
	for name := range w.Header() {
		w.Header().Del(name)
	}
	for name, values := range headersFromRecord(record.ResponseHeaders) {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.Header().Set(replayHeaderName, "true")

	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		_, _ = w.Write(record.ResponseBody)
	}
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
	})
}

// responseRecorder buffers a handler response so it can be stored before
// being written to the client.
type responseRecorder struct {
	parent http.ResponseWriter
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseRecorder(parent http.ResponseWriter) *responseRecorder {
	return &responseRecorder{parent: parent, header: make(http.Header)}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(status int) {
	if status <= 0 {
		status = http.StatusOK
	}
	r.status = status
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(data)
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) Body() []byte {
	if r.body.Len() == 0 {
		return nil
	}
	return r.body.Bytes()
}

func (r *responseRecorder) HeaderSnapshot() http.Header {
	snapshot := make(http.Header, len(r.header))
	for name, values := range r.header {
		snapshot[name] = append([]string(nil), values...)
	}
	return snapshot
}

// Commit flushes the buffered response to the underlying writer.
func (r *responseRecorder) Commit() error {
	dst := r.parent.Header()
	for name := range dst {
		dst.Del(name)
	}
	for name, values := range r.header {
		for _, value := range values {
			dst.Add(name, value)
		}
	}

	r.parent.WriteHeader(r.Status())
	if r.body.Len() == 0 {
		return nil
	}
	_, err := r.parent.Write(r.body.Bytes())
	return err
}
