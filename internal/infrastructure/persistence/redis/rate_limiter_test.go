package redis

import (
	"testing"
	"time"
)

func TestNextMinute(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 30, 45, 0, time.UTC)
	got := nextMinute(now)
	want := time.Date(2026, 3, 10, 12, 31, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("nextMinute = %v, want %v", got, want)
	}
}

func TestNextMinuteOnBoundary(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	got := nextMinute(now)
	want := time.Date(2026, 3, 10, 12, 31, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("nextMinute on boundary = %v, want %v", got, want)
	}
}

func TestNextUTCMidnight(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			"midday",
			time.Date(2026, 3, 10, 12, 30, 45, 0, time.UTC),
			time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			"just before midnight",
			time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC),
			time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			"month end",
			time.Date(2026, 3, 31, 6, 0, 0, 0, time.UTC),
			time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextUTCMidnight(tt.now)
			if !got.Equal(tt.want) {
				t.Errorf("nextUTCMidnight(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestWindowStatusExceeded(t *testing.T) {
	tests := []struct {
		name  string
		count int64
		limit int
		want  bool
	}{
		{"under limit", 5, 10, false},
		{"at limit", 10, 10, false},
		{"over limit", 11, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := WindowStatus{Count: tt.count, Limit: tt.limit}
			if got := w.Exceeded(); got != tt.want {
				t.Errorf("Exceeded() with count=%d limit=%d = %v, want %v", tt.count, tt.limit, got, tt.want)
			}
		})
	}
}

func TestStatusAllowed(t *testing.T) {
	s := &Status{
		Minute: WindowStatus{Count: 3, Limit: 10},
		Day:    WindowStatus{Count: 50, Limit: 200},
	}
	if !s.Allowed() {
		t.Error("expected allowed when both windows under limit")
	}

	// 任一窗口超限都拒绝
	s.Minute.Count = 11
	if s.Allowed() {
		t.Error("expected rejection when minute window exceeded")
	}

	s.Minute.Count = 3
	s.Day.Count = 201
	if s.Allowed() {
		t.Error("expected rejection when daily window exceeded")
	}
}
