// Package usage provides month-bucketed message counter functions.
// All functions are pure - no side effects.
package usage

import (
	"sort"
	"time"
)

// MonthKeyLayout is the time layout of a month key.
const MonthKeyLayout = "2006-01"

// Snapshot is the usage view returned to callers (value type).
type Snapshot struct {
	UID      string
	MonthKey string
	Count    int64     // Messages in MonthKey
	Lifetime int64     // Sum over every key ever recorded
	ResetsAt time.Time // First instant of the next month
	History  []Month   // Every recorded month, oldest first
}

// Month is one month-key counter.
type Month struct {
	Key   string
	Count int64
}

// MonthKey returns the YYYY-MM bucket for t, always computed in UTC.
// This is a PURE function.
func MonthKey(t time.Time) string {
	return t.UTC().Format(MonthKeyLayout)
}

// ParseMonthKey validates a month key and returns the first instant of the month.
func ParseMonthKey(key string) (time.Time, error) {
	return time.ParseInLocation(MonthKeyLayout, key, time.UTC)
}

// MonthBounds returns the first and last instant of the month containing t (UTC).
// This is a PURE function.
func MonthBounds(t time.Time) (start, end time.Time) {
	u := t.UTC()
	start = time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return
}

// CountFor returns the count recorded under key, defaulting to zero.
// This is a PURE function.
func CountFor(counts map[string]int64, key string) int64 {
	return counts[key]
}

// Lifetime sums every recorded month.
// This is a PURE function.
func Lifetime(counts map[string]int64) int64 {
	var total int64
	for _, c := range counts {
		total += c
	}
	return total
}

// Summarize builds a snapshot for the month containing now.
// This is a PURE function.
func Summarize(uid string, counts map[string]int64, now time.Time) Snapshot {
	key := MonthKey(now)
	_, end := MonthBounds(now)

	keys := Keys(counts)
	history := make([]Month, 0, len(keys))
	for _, k := range keys {
		history = append(history, Month{Key: k, Count: counts[k]})
	}
	return Snapshot{
		UID:      uid,
		MonthKey: key,
		Count:    CountFor(counts, key),
		Lifetime: Lifetime(counts),
		ResetsAt: end.Add(time.Nanosecond),
		History:  history,
	}
}

// Keys returns recorded month keys in chronological order.
// This is a PURE function.
func Keys(counts map[string]int64) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
