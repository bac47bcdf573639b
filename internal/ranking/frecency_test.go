package ranking

import (
	"testing"
	"time"
)

func TestDecayFactor(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want int
	}{
		{30 * time.Minute, 100},
		{4*time.Hour - time.Second, 100},
		{4 * time.Hour, 70},
		{23 * time.Hour, 70},
		{24 * time.Hour, 50},
		{6 * 24 * time.Hour, 50},
		{7 * 24 * time.Hour, 30},
		{365 * 24 * time.Hour, 30},
	}
	for _, tt := range tests {
		if got := DecayFactor(tt.age); got != tt.want {
			t.Errorf("DecayFactor(%v) = %d, want %d", tt.age, got, tt.want)
		}
	}
}

func TestFrecency(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Accessed once 2 hours ago: 1 x 100.
	if got := Frecency(1, now.Add(-2*time.Hour), now); got != 100 {
		t.Errorf("fresh single access = %d, want 100", got)
	}

	// Accessed 5 times, last 10 days ago: 5 x 30.
	if got := Frecency(5, now.Add(-10*24*time.Hour), now); got != 150 {
		t.Errorf("old frequent access = %d, want 150", got)
	}

	if got := Frecency(0, now, now); got != 0 {
		t.Errorf("zero accesses = %d, want 0", got)
	}
}
