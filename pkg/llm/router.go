package llm

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/relaycrm/skillengine/pkg/logger"
	"github.com/relaycrm/skillengine/pkg/telemetry"
	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
	skilltypes "github.com/relaycrm/skillengine/pkg/types/skill"
	"github.com/relaycrm/skillengine/pkg/usage"
)

const (
	defaultRouteTTL      = 5 * time.Minute
	defaultCallTimeout   = 120 * time.Second
	defaultRetryAttempts = 3
	defaultRetryDelay    = 500 * time.Millisecond
)

var tracer = telemetry.Tracer("skillengine.llm")

// Router resolves a tenant's logical capability to a concrete provider+model
// pair and executes the call through the matching adapter. Routes are cached
// with a short TTL and invalidated explicitly when tenant config changes.
type Router struct {
	adapters      map[string]ProviderAdapter
	config        TenantConfigSource
	cache         *routeCache
	usageSink     usage.Sink
	counter       usage.Counter
	callTimeout   time.Duration
	retryAttempts uint
	retryDelay    time.Duration
	now           func() time.Time
}

// Option configures a Router.
type Option func(*routerOptions)

type routerOptions struct {
	ttl           time.Duration
	callTimeout   time.Duration
	retryAttempts uint
	retryDelay    time.Duration
	usageSink     usage.Sink
	counter       usage.Counter
	now           func() time.Time
}

// WithRouteTTL overrides the routing cache TTL.
func WithRouteTTL(ttl time.Duration) Option {
	return func(o *routerOptions) { o.ttl = ttl }
}

// WithCallTimeout bounds each provider call so an unresponsive provider
// cannot hang a run indefinitely.
func WithCallTimeout(timeout time.Duration) Option {
	return func(o *routerOptions) { o.callTimeout = timeout }
}

// WithRetry overrides the retry policy for transient provider failures.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(o *routerOptions) { o.retryAttempts = attempts; o.retryDelay = delay }
}

// WithUsageSink sets the observability sink for per-call usage records.
func WithUsageSink(sink usage.Sink) Option {
	return func(o *routerOptions) { o.usageSink = sink }
}

// WithTokenCounter sets the per-tenant monthly token counter.
func WithTokenCounter(counter usage.Counter) Option {
	return func(o *routerOptions) { o.counter = counter }
}

// WithClock injects a clock for cache-expiry tests.
func WithClock(now func() time.Time) Option {
	return func(o *routerOptions) { o.now = now }
}

// NewRouter builds a router over the given adapters and tenant config source.
func NewRouter(config TenantConfigSource, adapters []ProviderAdapter, opts ...Option) *Router {
	options := routerOptions{
		ttl:           defaultRouteTTL,
		callTimeout:   defaultCallTimeout,
		retryAttempts: defaultRetryAttempts,
		retryDelay:    defaultRetryDelay,
		usageSink:     usage.LogSink{},
		counter:       usage.NewMonthlyCounter(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}

	adapterMap := make(map[string]ProviderAdapter, len(adapters))
	for _, adapter := range adapters {
		adapterMap[adapter.Provider()] = adapter
	}

	return &Router{
		adapters:      adapterMap,
		config:        config,
		cache:         newRouteCache(options.ttl, options.now),
		usageSink:     options.usageSink,
		counter:       options.counter,
		callTimeout:   options.callTimeout,
		retryAttempts: options.retryAttempts,
		retryDelay:    options.retryDelay,
		now:           options.now,
	}
}

// InvalidateTenant drops the tenant's cached routing. Called on every config
// write so the next call always sees the new route rather than waiting for
// TTL expiry.
func (r *Router) InvalidateTenant(tenantID string) {
	r.cache.invalidate(tenantID)
}

// Call routes one normalized request to the tenant's configured provider for
// the capability, retrying transient failures with bounded backoff. Every
// call updates the tenant's monthly token counter and emits a usage record;
// both are best-effort and never fail the caller.
func (r *Router) Call(ctx context.Context, tenantID string, capability llmtypes.Capability, req llmtypes.Request) (*llmtypes.Response, error) {
	if !capability.Valid() {
		return nil, skilltypes.NewConfigurationError("unknown capability %q", capability)
	}

	route, err := r.resolveRoute(ctx, tenantID, capability)
	if err != nil {
		return nil, err
	}

	adapter, ok := r.adapters[route.Provider]
	if !ok {
		return nil, skilltypes.NewConfigurationError(
			"tenant %s routes capability %s to provider %q, which has no adapter", tenantID, capability, route.Provider)
	}

	creds, err := r.config.GetProviderCredentials(ctx, tenantID, route.Provider)
	if err != nil {
		return nil, skilltypes.WrapConfigurationError(err,
			"no credentials for tenant %s on provider %s", tenantID, route.Provider)
	}

	ctx, span := tracer.Start(ctx, "llm.call", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("capability", string(capability)),
		attribute.String("provider", route.Provider),
		attribute.String("model", route.Model),
	))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	started := r.now()
	var resp *llmtypes.Response
	err = retry.Do(
		func() error {
			var callErr error
			resp, callErr = adapter.Complete(callCtx, route.Model, creds, req)
			return callErr
		},
		retry.Context(callCtx),
		retry.Attempts(r.retryAttempts),
		retry.Delay(r.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(attempt uint, err error) {
			logger.G(ctx).WithError(err).
				WithField("provider", route.Provider).
				WithField("attempt", attempt+1).
				Warn("retrying provider call")
		}),
	)
	if err != nil {
		return nil, err
	}

	r.recordUsage(ctx, tenantID, capability, route, resp, r.now().Sub(started))
	return resp, nil
}

// resolveRoute returns the tenant's provider+model for the capability,
// served from cache when fresh.
func (r *Router) resolveRoute(ctx context.Context, tenantID string, capability llmtypes.Capability) (llmtypes.ProviderModel, error) {
	routes, ok := r.cache.get(tenantID)
	if !ok {
		var err error
		routes, err = r.config.GetCapabilityRouting(ctx, tenantID)
		if err != nil {
			return llmtypes.ProviderModel{}, skilltypes.WrapConfigurationError(err,
				"failed to load capability routing for tenant %s", tenantID)
		}
		r.cache.set(tenantID, routes)
	}

	route, ok := routes[capability]
	if !ok || route.Provider == "" || route.Model == "" {
		return llmtypes.ProviderModel{}, skilltypes.NewConfigurationError(
			"tenant %s has no route for capability %s", tenantID, capability)
	}
	return route, nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var providerErr *llmtypes.ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Retryable()
	}
	return false
}

// recordUsage performs the post-call accounting side effects. Both are
// best-effort: the counter increment is atomic and in-process, the sink
// write runs detached with its error logged, never raised.
func (r *Router) recordUsage(ctx context.Context, tenantID string, capability llmtypes.Capability, route llmtypes.ProviderModel, resp *llmtypes.Response, latency time.Duration) {
	r.counter.Add(tenantID, r.now(), int64(resp.Usage.TotalTokens()))

	record := usage.Record{
		TenantID:         tenantID,
		Capability:       string(capability),
		Provider:         route.Provider,
		Model:            route.Model,
		InputTokens:      resp.Usage.InputTokens,
		OutputTokens:     resp.Usage.OutputTokens,
		EstimatedCostUSD: resp.Usage.TotalCost(),
		LatencyMs:        latency.Milliseconds(),
		At:               r.now(),
	}
	go func() {
		// Detached from the caller's context so cancellation of the run
		// does not lose the usage record.
		if err := r.usageSink.Record(context.WithoutCancel(ctx), record); err != nil {
			logger.G(ctx).WithError(err).Warn("failed to record usage")
		}
	}()
}
