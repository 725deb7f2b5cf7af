package clock

import (
	"sync"
	"testing"
	"time"
)

func TestSystemClockMonotonic(t *testing.T) {
	c := System()
	if c.TicksPerMillisecond() != 1_000_000 {
		t.Fatalf("Expected 1000000 ticks per ms, got %d", c.TicksPerMillisecond())
	}

	first := c.Now()
	time.Sleep(2 * time.Millisecond)
	second := c.Now()

	if second <= first {
		t.Errorf("Expected clock to advance, got %d then %d", first, second)
	}
}

func TestManualClock(t *testing.T) {
	m := NewManual(1)

	if m.Now() != 0 {
		t.Fatalf("Expected new clock at 0, got %d", m.Now())
	}

	m.Advance(10)
	m.Advance(-5)
	if m.Now() != 10 {
		t.Errorf("Expected 10 after advance, got %d", m.Now())
	}

	m.Set(4)
	if m.Now() != 10 {
		t.Errorf("Expected Set backwards to be ignored, got %d", m.Now())
	}

	m.Set(25)
	if m.Now() != 25 {
		t.Errorf("Expected 25 after Set, got %d", m.Now())
	}
}

func TestManualClockAdvanceMilliseconds(t *testing.T) {
	m := NewManual(1000)
	m.AdvanceMilliseconds(3)

	if got := ToMilliseconds(m.Now(), m.TicksPerMillisecond()); got != 3 {
		t.Errorf("Expected 3ms, got %v", got)
	}
}

func TestManualClockConcurrentAdvance(t *testing.T) {
	m := NewManual(1)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Advance(2)
		}()
	}
	wg.Wait()

	if m.Now() != 100 {
		t.Errorf("Expected 100, got %d", m.Now())
	}
}

func TestToMilliseconds(t *testing.T) {
	tests := []struct {
		name  string
		ticks int64
		perMs int64
		want  float64
	}{
		{"whole", 10, 1, 10},
		{"truncates to tenths", 1_234_567, 1_000_000, 1.2},
		{"sub tenth", 50, 1000, 0},
		{"zero rate", 10, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToMilliseconds(tt.ticks, tt.perMs); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}
