// Package usage tracks model spend across skill runs: per-call usage
// records emitted to an observability sink, and per-tenant monthly token
// counters incremented concurrently by every run for a tenant.
package usage

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaycrm/skillengine/pkg/logger"
)

// Record is one provider call's worth of usage, emitted fire-and-forget to
// the observability sink after every capability router call.
type Record struct {
	TenantID         string    `json:"tenantId"`
	Capability       string    `json:"capability"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	InputTokens      int       `json:"inputTokens"`
	OutputTokens     int       `json:"outputTokens"`
	EstimatedCostUSD float64   `json:"estimatedCostUsd"`
	LatencyMs        int64     `json:"latencyMs"`
	At               time.Time `json:"at"`
}

// Sink receives usage records. Implementations must tolerate concurrent
// calls; errors are logged by the caller, never propagated.
type Sink interface {
	Record(ctx context.Context, record Record) error
}

// LogSink writes usage records to the structured log. The default sink when
// no external observability pipeline is wired.
type LogSink struct{}

// Record logs the usage record at info level.
func (LogSink) Record(ctx context.Context, record Record) error {
	logger.G(ctx).WithFields(map[string]any{
		"tenant_id":     record.TenantID,
		"capability":    record.Capability,
		"provider":      record.Provider,
		"model":         record.Model,
		"input_tokens":  record.InputTokens,
		"output_tokens": record.OutputTokens,
		"estimated_usd": roundToFourDecimalPlaces(record.EstimatedCostUSD),
		"latency_ms":    record.LatencyMs,
	}).Info("llm usage")
	return nil
}

// Counter tracks per-tenant monthly token totals. Increments must be atomic:
// many runs for the same tenant update it concurrently and a lost update
// undercounts spend.
type Counter interface {
	Add(tenantID string, month time.Time, tokens int64)
	Total(tenantID string, month time.Time) int64
}

// MonthlyCounter is an in-memory Counter keyed by tenant and calendar month.
type MonthlyCounter struct {
	mu     sync.Mutex
	counts map[string]*int64
}

// NewMonthlyCounter returns an empty counter.
func NewMonthlyCounter() *MonthlyCounter {
	return &MonthlyCounter{counts: make(map[string]*int64)}
}

func monthKey(tenantID string, month time.Time) string {
	return fmt.Sprintf("%s/%s", tenantID, month.UTC().Format("2006-01"))
}

// Add atomically increments the tenant's counter for the given month.
func (c *MonthlyCounter) Add(tenantID string, month time.Time, tokens int64) {
	c.mu.Lock()
	counter, ok := c.counts[monthKey(tenantID, month)]
	if !ok {
		counter = new(int64)
		c.counts[monthKey(tenantID, month)] = counter
	}
	c.mu.Unlock()
	atomic.AddInt64(counter, tokens)
}

// Total returns the tenant's token total for the given month.
func (c *MonthlyCounter) Total(tenantID string, month time.Time) int64 {
	c.mu.Lock()
	counter, ok := c.counts[monthKey(tenantID, month)]
	c.mu.Unlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(counter)
}

func roundToFourDecimalPlaces(value float64) float64 {
	return math.Round(value*10000) / 10000
}
