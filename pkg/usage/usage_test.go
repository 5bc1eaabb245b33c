package usage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthlyCounterAddAndTotal(t *testing.T) {
	counter := NewMonthlyCounter()
	march := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	april := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)

	counter.Add("acme", march, 100)
	counter.Add("acme", march, 50)
	counter.Add("acme", april, 7)
	counter.Add("other", march, 1)

	assert.Equal(t, int64(150), counter.Total("acme", march))
	assert.Equal(t, int64(7), counter.Total("acme", april))
	assert.Equal(t, int64(1), counter.Total("other", march))
	assert.Equal(t, int64(0), counter.Total("nobody", march))
}

func TestMonthlyCounterSameMonthDifferentDays(t *testing.T) {
	counter := NewMonthlyCounter()
	first := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2026, 3, 31, 23, 59, 0, 0, time.UTC)

	counter.Add("acme", first, 10)
	counter.Add("acme", last, 5)
	assert.Equal(t, int64(15), counter.Total("acme", first))
}

func TestMonthlyCounterConcurrentAdds(t *testing.T) {
	counter := NewMonthlyCounter()
	month := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				counter.Add("acme", month, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5000), counter.Total("acme", month))
}

func TestLogSinkNeverFails(t *testing.T) {
	require.NoError(t, LogSink{}.Record(context.Background(), Record{
		TenantID: "acme",
		Provider: "anthropic",
	}))
}

func TestAggregate(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	records := []Record{
		{Provider: "anthropic", InputTokens: 100, OutputTokens: 10, EstimatedCostUSD: 0.01, At: day1},
		{Provider: "anthropic", InputTokens: 200, OutputTokens: 20, EstimatedCostUSD: 0.02, At: day1},
		{Provider: "openai", InputTokens: 50, OutputTokens: 5, EstimatedCostUSD: 0.005, At: day2},
	}

	stats := Aggregate(records, time.Time{}, time.Time{})

	assert.Equal(t, 3, stats.TotalCalls)
	assert.InDelta(t, 0.035, stats.TotalUSD, 1e-9)

	require.Len(t, stats.Daily, 2)
	// Newest first.
	assert.Equal(t, day2.Truncate(24*time.Hour), stats.Daily[0].Date)
	assert.Equal(t, 1, stats.Daily[0].Calls)
	assert.Equal(t, 2, stats.Daily[1].Calls)
	assert.Equal(t, 300, stats.Daily[1].InputTokens)

	require.Contains(t, stats.ByProvider, "anthropic")
	assert.Equal(t, 2, stats.ByProvider["anthropic"].Calls)
	assert.Equal(t, 1, stats.ByProvider["openai"].Calls)
}

func TestAggregateWindow(t *testing.T) {
	records := []Record{
		{Provider: "anthropic", At: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{Provider: "anthropic", At: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)},
		{Provider: "anthropic", At: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
	}

	stats := Aggregate(records,
		time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, 1, stats.TotalCalls)
}
