package util

import (
	"testing"
	"time"
)

func TestManualClock(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	soon := c.After(time.Minute)
	later := c.After(time.Hour)

	c.Advance(30 * time.Second)
	select {
	case <-soon:
		t.Fatal("timer fired early")
	default:
	}

	c.Advance(30 * time.Second)
	select {
	case got := <-soon:
		if !got.Equal(start.Add(time.Minute)) {
			t.Errorf("Expected fire time %v, got %v", start.Add(time.Minute), got)
		}
	default:
		t.Fatal("timer did not fire at deadline")
	}

	select {
	case <-later:
		t.Fatal("hour timer fired early")
	default:
	}

	c.Set(start.Add(2 * time.Hour))
	select {
	case <-later:
	default:
		t.Fatal("hour timer did not fire")
	}

	select {
	case <-c.After(0):
	default:
		t.Fatal("zero timer should fire immediately")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"":      "info",
		"debug": "debug",
		"warn":  "warn",
		"bogus": "info",
	}
	for in, want := range tests {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
