package pow

import (
	"sync"
	"testing"
	"time"
)

func TestMeter_Sample(t *testing.T) {
	clock := time.Unix(1700000000, 0)
	m := newMeterWithClock(func() time.Time { return clock })

	m.Add(1000)
	m.Add(500)
	clock = clock.Add(2 * time.Second)

	hashes, elapsed := m.Sample()
	if hashes != 1500 {
		t.Errorf("Sample() hashes = %d, want 1500", hashes)
	}
	if elapsed != 2*time.Second {
		t.Errorf("Sample() elapsed = %v, want 2s", elapsed)
	}

	// Next window starts empty
	clock = clock.Add(time.Second)
	hashes, elapsed = m.Sample()
	if hashes != 0 || elapsed != time.Second {
		t.Errorf("Sample() = (%d, %v), want (0, 1s)", hashes, elapsed)
	}

	if m.Total() != 1500 {
		t.Errorf("Total() = %d, want 1500", m.Total())
	}
}

func TestMeter_ConcurrentAdd(t *testing.T) {
	m := NewMeter()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Add(1)
			}
		}()
	}
	wg.Wait()

	if m.Total() != 8000 {
		t.Errorf("Total() = %d, want 8000", m.Total())
	}
}

func TestRate(t *testing.T) {
	if got := Rate(5000, 2*time.Second); got != 2500 {
		t.Errorf("Rate() = %v, want 2500", got)
	}
	if got := Rate(5000, 0); got != 0 {
		t.Errorf("Rate() with zero elapsed = %v, want 0", got)
	}
}
