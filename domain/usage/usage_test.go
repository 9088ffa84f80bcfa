package usage

import (
	"testing"
	"time"
)

func TestMonthKey(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"mid month", time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC), "2024-06"},
		{"first instant", time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), "2024-07"},
		{"last instant", time.Date(2024, 6, 30, 23, 59, 59, 999999999, time.UTC), "2024-06"},
		{"year rollover", time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), "2024-12"},
		// 2024-07-01 01:00 in UTC+2 is still June in UTC.
		{"non-UTC input", time.Date(2024, 7, 1, 1, 0, 0, 0, time.FixedZone("CEST", 2*3600)), "2024-06"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MonthKey(tt.at); got != tt.want {
				t.Errorf("MonthKey() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMonthKey_RolloverProducesIndependentBuckets(t *testing.T) {
	counts := map[string]int64{}
	last := time.Date(2024, 6, 30, 23, 59, 59, 999999999, time.UTC)
	first := last.Add(time.Nanosecond)

	counts[MonthKey(last)]++
	counts[MonthKey(first)]++

	if counts["2024-06"] != 1 || counts["2024-07"] != 1 {
		t.Errorf("counts = %v, want 2024-06=1 and 2024-07=1", counts)
	}
}

func TestSummarize(t *testing.T) {
	counts := map[string]int64{"2024-05": 12, "2024-06": 49}
	now := time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)

	s := Summarize("u1", counts, now)

	if s.MonthKey != "2024-06" {
		t.Errorf("MonthKey = %s, want 2024-06", s.MonthKey)
	}
	if s.Count != 49 {
		t.Errorf("Count = %d, want 49", s.Count)
	}
	if s.Lifetime != 61 {
		t.Errorf("Lifetime = %d, want 61", s.Lifetime)
	}
	if !s.ResetsAt.Equal(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ResetsAt = %v, want 2024-07-01", s.ResetsAt)
	}
	if len(s.History) != 2 || s.History[0] != (Month{Key: "2024-05", Count: 12}) || s.History[1] != (Month{Key: "2024-06", Count: 49}) {
		t.Errorf("History = %+v", s.History)
	}
}

func TestSummarize_EmptyDefaultsToZero(t *testing.T) {
	s := Summarize("u1", nil, time.Now())
	if s.Count != 0 || s.Lifetime != 0 || len(s.History) != 0 {
		t.Errorf("Summarize(nil) = %+v, want zeros", s)
	}
}

func TestMonthBounds(t *testing.T) {
	start, end := MonthBounds(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC))

	if !start.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", start)
	}
	if MonthKey(end) != "2024-02" || MonthKey(end.Add(time.Nanosecond)) != "2024-03" {
		t.Errorf("end = %v is not the last instant of February", end)
	}
}

func TestParseMonthKey(t *testing.T) {
	if _, err := ParseMonthKey("2024-13"); err == nil {
		t.Error("ParseMonthKey(2024-13) expected error")
	}
	got, err := ParseMonthKey("2024-06")
	if err != nil {
		t.Fatalf("ParseMonthKey() error = %v", err)
	}
	if MonthKey(got) != "2024-06" {
		t.Errorf("round trip = %s", MonthKey(got))
	}
}

func TestKeys_Sorted(t *testing.T) {
	keys := Keys(map[string]int64{"2024-07": 1, "2023-12": 1, "2024-01": 1})
	want := []string{"2023-12", "2024-01", "2024-07"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Keys() = %v, want %v", keys, want)
		}
	}
}
