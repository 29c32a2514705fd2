package system

import (
	"testing"
	"time"
)

func TestClockNowIsUTC(t *testing.T) {
	t.Parallel()

	c := New()
	now := c.Now()
	if now.Location() != time.UTC {
		t.Fatalf("expected UTC time, got %v", now.Location())
	}
	if time.Since(now) > time.Second {
		t.Fatalf("clock is not current: %v", now)
	}
}
