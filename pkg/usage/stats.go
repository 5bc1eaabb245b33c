package usage

import (
	"sort"
	"time"
)

// DailyStats aggregates records for a single day.
type DailyStats struct {
	Date             time.Time
	Calls            int
	InputTokens      int
	OutputTokens     int
	EstimatedCostUSD float64
}

// ProviderStats aggregates records for a single provider.
type ProviderStats struct {
	Calls            int
	InputTokens      int
	OutputTokens     int
	EstimatedCostUSD float64
}

// Stats is an aggregated view over a set of usage records, with daily and
// per-provider breakdowns for operator reporting.
type Stats struct {
	Daily      []DailyStats
	ByProvider map[string]*ProviderStats
	TotalCalls int
	TotalUSD   float64
}

// Aggregate computes stats for records within [start, end]. Zero bounds are
// open-ended. Daily entries are sorted newest first.
func Aggregate(records []Record, start, end time.Time) *Stats {
	dailyMap := make(map[string]*DailyStats)
	byProvider := make(map[string]*ProviderStats)
	stats := &Stats{ByProvider: byProvider}

	for _, record := range records {
		date := record.At.UTC().Truncate(24 * time.Hour)
		if !start.IsZero() && date.Before(start) {
			continue
		}
		if !end.IsZero() && date.After(end) {
			continue
		}

		dateKey := date.Format("2006-01-02")
		daily, ok := dailyMap[dateKey]
		if !ok {
			daily = &DailyStats{Date: date}
			dailyMap[dateKey] = daily
		}
		daily.Calls++
		daily.InputTokens += record.InputTokens
		daily.OutputTokens += record.OutputTokens
		daily.EstimatedCostUSD += record.EstimatedCostUSD

		provider, ok := byProvider[record.Provider]
		if !ok {
			provider = &ProviderStats{}
			byProvider[record.Provider] = provider
		}
		provider.Calls++
		provider.InputTokens += record.InputTokens
		provider.OutputTokens += record.OutputTokens
		provider.EstimatedCostUSD += record.EstimatedCostUSD

		stats.TotalCalls++
		stats.TotalUSD += record.EstimatedCostUSD
	}

	for _, daily := range dailyMap {
		stats.Daily = append(stats.Daily, *daily)
	}
	sort.Slice(stats.Daily, func(i, j int) bool {
		return stats.Daily[i].Date.After(stats.Daily[j].Date)
	})

	return stats
}
