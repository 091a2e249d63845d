package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresTickersInOrder(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	f := NewFake(start)

	ticker := f.NewTicker(10 * time.Second)
	f.Advance(35 * time.Second)

	var fired []time.Time
	for {
		select {
		case tick := <-ticker.C():
			fired = append(fired, tick)
			continue
		default:
		}
		break
	}

	if len(fired) != 3 {
		t.Fatalf("got %d ticks, want 3", len(fired))
	}
	for i, tick := range fired {
		want := start.Add(time.Duration(i+1) * 10 * time.Second)
		if !tick.Equal(want) {
			t.Fatalf("tick %d = %v, want %v", i, tick, want)
		}
	}
	if !f.Now().Equal(start.Add(35 * time.Second)) {
		t.Fatalf("Now = %v after advance", f.Now())
	}
}

func TestFakeStoppedTickerStaysSilent(t *testing.T) {
	f := NewFake(time.Unix(1_700_000_000, 0))

	ticker := f.NewTicker(time.Second)
	ticker.Stop()
	f.Advance(10 * time.Second)

	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}
