package llm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
	skilltypes "github.com/relaycrm/skillengine/pkg/types/skill"
)

// fakeConfig is a scriptable TenantConfigSource that counts routing fetches.
type fakeConfig struct {
	mu         sync.Mutex
	routes     map[llmtypes.Capability]llmtypes.ProviderModel
	routeErr   error
	credErr    error
	fetchCount int
}

func (f *fakeConfig) GetCapabilityRouting(context.Context, string) (map[llmtypes.Capability]llmtypes.ProviderModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCount++
	if f.routeErr != nil {
		return nil, f.routeErr
	}
	routes := make(map[llmtypes.Capability]llmtypes.ProviderModel, len(f.routes))
	for k, v := range f.routes {
		routes[k] = v
	}
	return routes, nil
}

func (f *fakeConfig) GetProviderCredentials(_ context.Context, _, provider string) (llmtypes.Credentials, error) {
	if f.credErr != nil {
		return llmtypes.Credentials{}, f.credErr
	}
	return llmtypes.Credentials{APIKey: "key-" + provider}, nil
}

func (f *fakeConfig) setRoute(capability llmtypes.Capability, provider, model string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.routes == nil {
		f.routes = make(map[llmtypes.Capability]llmtypes.ProviderModel)
	}
	f.routes[capability] = llmtypes.ProviderModel{Provider: provider, Model: model}
}

// fakeAdapter records the models it was called with and replays scripted
// errors before succeeding.
type fakeAdapter struct {
	name    string
	errs    []error
	models  []string
	content string
}

func (a *fakeAdapter) Provider() string { return a.name }

func (a *fakeAdapter) Complete(_ context.Context, model string, creds llmtypes.Credentials, _ llmtypes.Request) (*llmtypes.Response, error) {
	a.models = append(a.models, model)
	if len(a.errs) > 0 {
		err := a.errs[0]
		a.errs = a.errs[1:]
		return nil, err
	}
	content := a.content
	if content == "" {
		content = "ok from " + a.name
	}
	return &llmtypes.Response{
		Content:    content,
		StopReason: llmtypes.StopEndTurn,
		Usage:      llmtypes.Usage{InputTokens: 100, OutputTokens: 20},
	}, nil
}

// fakeClock is an adjustable clock for cache expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func simpleRequest() llmtypes.Request {
	return llmtypes.Request{Messages: []llmtypes.Message{{Role: llmtypes.RoleUser, Content: "hi"}}}
}

func TestCallRoutesToConfiguredProvider(t *testing.T) {
	config := &fakeConfig{}
	config.setRoute(llmtypes.CapabilityReason, "anthropic", "claude-sonnet-4-5")
	config.setRoute(llmtypes.CapabilityExtract, "openai", "gpt-5-mini")

	anthropicAdapter := &fakeAdapter{name: "anthropic"}
	openaiAdapter := &fakeAdapter{name: "openai"}
	router := NewRouter(config, []ProviderAdapter{anthropicAdapter, openaiAdapter})

	resp, err := router.Call(context.Background(), "tenant-1", llmtypes.CapabilityReason, simpleRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok from anthropic", resp.Content)
	assert.Equal(t, []string{"claude-sonnet-4-5"}, anthropicAdapter.models)

	resp, err = router.Call(context.Background(), "tenant-1", llmtypes.CapabilityExtract, simpleRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok from openai", resp.Content)
	assert.Equal(t, []string{"gpt-5-mini"}, openaiAdapter.models)
}

func TestCallUnknownCapability(t *testing.T) {
	router := NewRouter(&fakeConfig{}, nil)

	_, err := router.Call(context.Background(), "tenant-1", "summon", simpleRequest())
	require.Error(t, err)
	var configErr *skilltypes.ConfigurationError
	assert.ErrorAs(t, err, &configErr)
}

func TestCallMissingRoute(t *testing.T) {
	config := &fakeConfig{}
	config.setRoute(llmtypes.CapabilityReason, "anthropic", "claude-sonnet-4-5")
	router := NewRouter(config, []ProviderAdapter{&fakeAdapter{name: "anthropic"}})

	_, err := router.Call(context.Background(), "tenant-1", llmtypes.CapabilityGenerate, simpleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no route for capability generate")
}

func TestCallMissingAdapter(t *testing.T) {
	config := &fakeConfig{}
	config.setRoute(llmtypes.CapabilityReason, "mystery", "model-x")
	router := NewRouter(config, nil)

	_, err := router.Call(context.Background(), "tenant-1", llmtypes.CapabilityReason, simpleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no adapter")
}

func TestCallMissingCredentials(t *testing.T) {
	config := &fakeConfig{credErr: errors.New("no key anywhere")}
	config.setRoute(llmtypes.CapabilityReason, "anthropic", "claude-sonnet-4-5")
	adapter := &fakeAdapter{name: "anthropic"}
	router := NewRouter(config, []ProviderAdapter{adapter})

	_, err := router.Call(context.Background(), "tenant-1", llmtypes.CapabilityReason, simpleRequest())
	require.Error(t, err)
	var configErr *skilltypes.ConfigurationError
	assert.ErrorAs(t, err, &configErr)
	assert.Empty(t, adapter.models)
}

func TestRouteCacheServesRepeatCalls(t *testing.T) {
	config := &fakeConfig{}
	config.setRoute(llmtypes.CapabilityReason, "anthropic", "claude-sonnet-4-5")
	router := NewRouter(config, []ProviderAdapter{&fakeAdapter{name: "anthropic"}})

	for i := 0; i < 5; i++ {
		_, err := router.Call(context.Background(), "tenant-1", llmtypes.CapabilityReason, simpleRequest())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, config.fetchCount)
}

func TestRouteCacheExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	config := &fakeConfig{}
	config.setRoute(llmtypes.CapabilityReason, "anthropic", "claude-sonnet-4-5")
	router := NewRouter(config, []ProviderAdapter{&fakeAdapter{name: "anthropic"}},
		WithRouteTTL(5*time.Minute), WithClock(clock.Now))

	_, err := router.Call(context.Background(), "tenant-1", llmtypes.CapabilityReason, simpleRequest())
	require.NoError(t, err)
	require.Equal(t, 1, config.fetchCount)

	clock.Advance(4 * time.Minute)
	_, err = router.Call(context.Background(), "tenant-1", llmtypes.CapabilityReason, simpleRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, config.fetchCount)

	clock.Advance(2 * time.Minute)
	_, err = router.Call(context.Background(), "tenant-1", llmtypes.CapabilityReason, simpleRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, config.fetchCount)
}

func TestInvalidateTenantTakesEffectImmediately(t *testing.T) {
	config := &fakeConfig{}
	config.setRoute(llmtypes.CapabilityReason, "anthropic", "claude-sonnet-4-5")

	anthropicAdapter := &fakeAdapter{name: "anthropic"}
	openaiAdapter := &fakeAdapter{name: "openai"}
	router := NewRouter(config, []ProviderAdapter{anthropicAdapter, openaiAdapter})

	_, err := router.Call(context.Background(), "tenant-1", llmtypes.CapabilityReason, simpleRequest())
	require.NoError(t, err)

	// Config change plus invalidation: next call must see the new route,
	// not wait for TTL expiry.
	config.setRoute(llmtypes.CapabilityReason, "openai", "gpt-5")
	router.InvalidateTenant("tenant-1")

	_, err = router.Call(context.Background(), "tenant-1", llmtypes.CapabilityReason, simpleRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-5"}, openaiAdapter.models)
	assert.Equal(t, 2, config.fetchCount)
}

func TestCallRetriesTransientErrors(t *testing.T) {
	config := &fakeConfig{}
	config.setRoute(llmtypes.CapabilityReason, "anthropic", "claude-sonnet-4-5")
	adapter := &fakeAdapter{
		name: "anthropic",
		errs: []error{
			&llmtypes.ProviderError{Provider: "anthropic", StatusCode: 429, Err: errors.New("rate limited")},
			&llmtypes.ProviderError{Provider: "anthropic", StatusCode: 503, Err: errors.New("overloaded")},
		},
	}
	router := NewRouter(config, []ProviderAdapter{adapter}, WithRetry(3, time.Millisecond))

	resp, err := router.Call(context.Background(), "tenant-1", llmtypes.CapabilityReason, simpleRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok from anthropic", resp.Content)
	assert.Len(t, adapter.models, 3)
}

func TestCallDoesNotRetryClientErrors(t *testing.T) {
	config := &fakeConfig{}
	config.setRoute(llmtypes.CapabilityReason, "anthropic", "claude-sonnet-4-5")
	adapter := &fakeAdapter{
		name: "anthropic",
		errs: []error{
			&llmtypes.ProviderError{Provider: "anthropic", StatusCode: 400, Err: errors.New("bad request")},
		},
	}
	router := NewRouter(config, []ProviderAdapter{adapter}, WithRetry(3, time.Millisecond))

	_, err := router.Call(context.Background(), "tenant-1", llmtypes.CapabilityReason, simpleRequest())
	require.Error(t, err)
	assert.Len(t, adapter.models, 1)
}

func TestCallRetriesExhausted(t *testing.T) {
	config := &fakeConfig{}
	config.setRoute(llmtypes.CapabilityReason, "anthropic", "claude-sonnet-4-5")
	adapter := &fakeAdapter{
		name: "anthropic",
		errs: []error{
			&llmtypes.ProviderError{Provider: "anthropic", StatusCode: 500, Err: errors.New("one")},
			&llmtypes.ProviderError{Provider: "anthropic", StatusCode: 500, Err: errors.New("two")},
			&llmtypes.ProviderError{Provider: "anthropic", StatusCode: 500, Err: errors.New("three")},
		},
	}
	router := NewRouter(config, []ProviderAdapter{adapter}, WithRetry(3, time.Millisecond))

	_, err := router.Call(context.Background(), "tenant-1", llmtypes.CapabilityReason, simpleRequest())
	require.Error(t, err)
	var providerErr *llmtypes.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, "three", providerErr.Err.Error())
	assert.Len(t, adapter.models, 3)
}

func TestCallUpdatesMonthlyCounter(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	config := &fakeConfig{}
	config.setRoute(llmtypes.CapabilityReason, "anthropic", "claude-sonnet-4-5")
	router := NewRouter(config, []ProviderAdapter{&fakeAdapter{name: "anthropic"}}, WithClock(clock.Now))

	_, err := router.Call(context.Background(), "tenant-1", llmtypes.CapabilityReason, simpleRequest())
	require.NoError(t, err)
	_, err = router.Call(context.Background(), "tenant-1", llmtypes.CapabilityReason, simpleRequest())
	require.NoError(t, err)

	// 120 tokens per call.
	assert.Equal(t, int64(240), router.counter.Total("tenant-1", clock.Now()))
	assert.Equal(t, int64(0), router.counter.Total("tenant-2", clock.Now()))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "rate limit", err: &llmtypes.ProviderError{StatusCode: 429}, want: true},
		{name: "server error", err: &llmtypes.ProviderError{StatusCode: 500}, want: true},
		{name: "transport failure", err: &llmtypes.ProviderError{StatusCode: 0}, want: true},
		{name: "client error", err: &llmtypes.ProviderError{StatusCode: 404}, want: false},
		{name: "plain error", err: errors.New("nope"), want: false},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}
