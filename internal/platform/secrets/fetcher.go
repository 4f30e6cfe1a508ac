package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultEnvironment  = "local"
	defaultFallbackPath = ".secrets.local"
	defaultVersion      = "latest"
	meterName           = "github.com/plateful/api/internal/platform/secrets"
)

// secretManagerClientFactory is swapped out by tests.
var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// secretRef is a parsed secret:// reference. The canonical form strips the
// query so the same secret cached under different query strings dedupes.
type secretRef struct {
	raw       string
	canonical string
	name      string
	version   string
	project   string
}

// Fetcher resolves secret:// references through Google Secret Manager, with
// an in-process cache and a local file fallback for development.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger

	env            string
	defaultProject string
	projectByEnv   map[string]string
	versionPins    map[string]string

	fallback fallbackFile

	mu       sync.RWMutex
	cache    map[string]cacheEntry
	watchers map[string][]chan struct{}

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type cacheEntry struct {
	value     string
	canonical string
	version   string
	fetchedAt time.Time
	source    string
}

type fetcherConfig struct {
	logger       *zap.Logger
	env          string
	defaultProj  string
	projectByEnv map[string]string
	fallbackPath string
	meter        metric.Meter
	client       secretManagerClient
	clientOpts   []option.ClientOption
	versionPins  map[string]string
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) { cfg.logger = logger }
}

// WithEnvironment selects which per-environment project mapping applies.
func WithEnvironment(env string) Option {
	return func(cfg *fetcherConfig) { cfg.env = strings.ToLower(strings.TrimSpace(env)) }
}

// WithDefaultProject sets the project used when no environment mapping matches.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) { cfg.defaultProj = strings.TrimSpace(projectID) }
}

// WithProjectMap supplies per-environment project IDs.
func WithProjectMap(m map[string]string) Option {
	return func(cfg *fetcherConfig) { cfg.projectByEnv = cloneMap(m) }
}

// WithFallbackFile points at the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) { cfg.fallbackPath = strings.TrimSpace(path) }
}

// WithMeter injects a custom OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) { cfg.meter = m }
}

// WithSecretManagerClient injects a preconfigured client, primarily for tests.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

// WithClientOptions forwards Cloud client options to the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// WithVersionPins overrides secret versions, keyed by canonical reference
// or "env:reference" for environment-specific pins.
func WithVersionPins(pins map[string]string) Option {
	return func(cfg *fetcherConfig) { cfg.versionPins = cloneMap(pins) }
}

// NewFetcher builds a Fetcher. A missing Secret Manager client is not fatal:
// the fetcher degrades to the local fallback file, which keeps local
// development working without cloud credentials.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:       zap.NewNop(),
		env:          strings.ToLower(strings.TrimSpace(os.Getenv("API_ENVIRONMENT"))),
		fallbackPath: defaultFallbackPath,
		projectByEnv: map[string]string{},
		versionPins:  map[string]string{},
	}
	if cfg.env == "" {
		cfg.env = defaultEnvironment
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	latency, err := meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret fetch attempts"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: unable to register latency metric", zap.Error(err))
		latency = nil
	}
	cacheHits, err := meter.Int64Counter(
		"secrets.fetch.cache_hits",
		metric.WithDescription("Count of cache hits when resolving secrets"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: unable to register cache hit metric", zap.Error(err))
		cacheHits = nil
	}

	f := &Fetcher{
		logger:         cfg.logger,
		env:            cfg.env,
		defaultProject: cfg.defaultProj,
		projectByEnv:   cloneMap(cfg.projectByEnv),
		versionPins:    cloneMap(cfg.versionPins),
		fallback:       fallbackFile{path: cfg.fallbackPath},
		cache:          make(map[string]cacheEntry),
		watchers:       make(map[string][]chan struct{}),
		latency:        latency,
		cacheHits:      cacheHits,
	}

	if cfg.client != nil {
		f.client = cfg.client
		return f, nil
	}
	client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
	if err != nil {
		cfg.logger.Warn("secrets: secret manager client unavailable, using fallback file only", zap.Error(err))
		return f, nil
	}
	f.client = client
	f.ownsClient = true
	return f, nil
}

// Close releases the client and shuts down all subscriptions.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	for canonical, watchers := range f.watchers {
		delete(f.watchers, canonical)
		for _, ch := range watchers {
			closeQuietly(ch)
		}
	}
	f.mu.Unlock()

	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the secret value for a secret:// reference. Cache is
// consulted first, then Secret Manager, then the fallback file when the
// remote failure looks like a credentials or availability problem.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	parsed, err := parseRef(ref)
	if err != nil {
		return "", err
	}

	version := f.pinnedVersion(parsed)
	key := cacheKey(parsed.canonical, version)

	if value, ok := f.cached(key); ok {
		f.countCacheHit(ctx, parsed)
		f.observeLatency(ctx, time.Since(start), "cache", nil)
		return value, nil
	}

	projectID := f.projectFor(parsed)
	if projectID != "" && f.client != nil {
		value, fetchErr := f.fetchRemote(ctx, projectID, parsed.name, version)
		if fetchErr == nil {
			f.store(key, value, parsed.canonical, version, "remote")
			f.observeLatency(ctx, time.Since(start), "remote", nil)
			return value, nil
		}
		if !fallbackWorthy(fetchErr) {
			f.observeLatency(ctx, time.Since(start), "error", fetchErr)
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", parsed.canonical, fetchErr)
		}
		f.logger.Debug("secrets: falling back to local secrets", zap.String("ref", parsed.canonical), zap.Error(fetchErr))
	}

	value, ok := f.fallback.lookup(parsed, version)
	if !ok {
		err := fmt.Errorf("secrets: fallback value not found for %s", parsed.canonical)
		f.observeLatency(ctx, time.Since(start), "error", err)
		return "", err
	}
	f.store(key, value, parsed.canonical, version, "fallback")
	f.observeLatency(ctx, time.Since(start), "fallback", nil)
	return value, nil
}

// Invalidate drops cached values for the reference and wakes subscribers.
func (f *Fetcher) Invalidate(ref string) {
	parsed, err := parseRef(ref)
	if err != nil {
		return
	}

	f.mu.Lock()
	for key, entry := range f.cache {
		if entry.canonical == parsed.canonical {
			delete(f.cache, key)
		}
	}
	watchers := f.watchers[parsed.canonical]
	f.mu.Unlock()

	for _, ch := range watchers {
		wakeWatcher(ch)
	}
}

// Subscribe registers for invalidation notifications on the reference. The
// returned cancel func removes the subscription.
func (f *Fetcher) Subscribe(ref string) (<-chan struct{}, func()) {
	parsed, err := parseRef(ref)
	if err != nil {
		ch := make(chan struct{})
		close(ch)
		return ch, func() {}
	}

	ch := make(chan struct{}, 1)
	f.mu.Lock()
	f.watchers[parsed.canonical] = append(f.watchers[parsed.canonical], ch)
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		watchers := f.watchers[parsed.canonical]
		for i, watcher := range watchers {
			if watcher == ch {
				watchers = append(watchers[:i], watchers[i+1:]...)
				break
			}
		}
		if len(watchers) == 0 {
			delete(f.watchers, parsed.canonical)
			return
		}
		f.watchers[parsed.canonical] = watchers
	}
	return ch, cancel
}

// Notify handles an external rotation event for the reference.
func (f *Fetcher) Notify(ref string) {
	f.Invalidate(ref)
}

func (f *Fetcher) cached(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entry, ok := f.cache[key]
	if !ok {
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) store(key, value, canonical, version, source string) {
	f.mu.Lock()
	f.cache[key] = cacheEntry{
		value:     value,
		canonical: canonical,
		version:   version,
		fetchedAt: time.Now(),
		source:    source,
	}
	f.mu.Unlock()
}

func (f *Fetcher) fetchRemote(ctx context.Context, projectID, name, version string) (string, error) {
	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", projectID, name, version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Payload == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", resource)
	}
	return string(resp.Payload.GetData()), nil
}

func (f *Fetcher) projectFor(ref secretRef) string {
	if ref.project != "" {
		return ref.project
	}
	if id := strings.TrimSpace(f.projectByEnv[f.env]); id != "" {
		return id
	}
	return strings.TrimSpace(f.defaultProject)
}

func (f *Fetcher) pinnedVersion(ref secretRef) string {
	if ref.version != "" {
		return ref.version
	}
	if pin := strings.TrimSpace(f.versionPins[envKey(f.env, ref.canonical)]); pin != "" {
		return pin
	}
	if pin := strings.TrimSpace(f.versionPins[ref.canonical]); pin != "" {
		return pin
	}
	return defaultVersion
}

func (f *Fetcher) observeLatency(ctx context.Context, d time.Duration, source string, err error) {
	if f.latency == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("source", source)}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	f.latency.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributes(attrs...))
}

func (f *Fetcher) countCacheHit(ctx context.Context, ref secretRef) {
	if f.cacheHits == nil {
		return
	}
	f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", maskRef(ref.canonical))))
}

// fallbackFile loads KEY=VALUE pairs from a local dotfile once and serves
// lookups from memory.
type fallbackFile struct {
	path   string
	once   sync.Once
	values map[string]string
	err    error
}

func (f *fallbackFile) lookup(ref secretRef, version string) (string, bool) {
	f.once.Do(f.load)
	if f.err != nil {
		return "", false
	}
	if value, ok := f.values[cacheKey(ref.canonical, version)]; ok {
		return value, true
	}
	if value, ok := f.values[ref.canonical]; ok {
		return value, true
	}
	return "", false
}

func (f *fallbackFile) load() {
	f.values = map[string]string{}

	path := strings.TrimSpace(f.path)
	if path == "" {
		return
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	file, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.err = fmt.Errorf("secrets: unable to open fallback file %s: %w", path, err)
		}
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rawKey, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key := normalizeFallbackKey(rawKey)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}
		if parsed, err := parseRef(key); err == nil {
			version := parsed.version
			if version == "" {
				version = defaultVersion
			}
			f.values[parsed.canonical] = value
			f.values[cacheKey(parsed.canonical, version)] = value
			continue
		}
		f.values[key] = value
	}
	if err := scanner.Err(); err != nil {
		f.err = fmt.Errorf("secrets: failed reading %s: %w", path, err)
	}
}

// normalizeFallbackKey accepts the sm:// shorthand some tooling emits.
func normalizeFallbackKey(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, found := strings.CutPrefix(trimmed, "sm://"); found {
		return "secret://" + rest
	}
	return trimmed
}

func parseRef(ref string) (secretRef, error) {
	if strings.TrimSpace(ref) == "" {
		return secretRef{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return secretRef{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return secretRef{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(strings.TrimPrefix(u.Host+u.Path, "/"), "/")
	if name == "" {
		return secretRef{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}

	canonical := *u
	canonical.RawQuery = ""
	canonical.Fragment = ""

	query := u.Query()
	return secretRef{
		raw:       ref,
		canonical: canonical.String(),
		name:      name,
		version:   strings.TrimSpace(query.Get("version")),
		project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func cacheKey(canonical, version string) string {
	return canonical + "#" + version
}

func envKey(env, canonical string) string {
	if strings.TrimSpace(env) == "" {
		return canonical
	}
	return env + ":" + canonical
}

func cloneMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}

func maskRef(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(sum[:8])
}

// fallbackWorthy reports whether a remote failure should be papered over by
// the local file. Not-found stays fatal so a typoed secret name surfaces.
func fallbackWorthy(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

func wakeWatcher(ch chan struct{}) {
	if ch == nil {
		return
	}
	defer func() { _ = recover() }()
	select {
	case ch <- struct{}{}:
	default:
	}
}

func closeQuietly(ch chan struct{}) {
	defer func() { _ = recover() }()
	close(ch)
}
