package app

import (
	"testing"
	"time"

	"delivery-tracking/internal/domain/geo"
	"delivery-tracking/internal/general/clock"
	"delivery-tracking/internal/general/logger"
	"delivery-tracking/internal/tracking/domain"
)

var testEpoch = time.Unix(1_700_000_000, 0).UTC()

func sampleAt(lat, lng float64, offset time.Duration) domain.PositionSample {
	return domain.PositionSample{
		Point:     geo.Point{Lat: lat, Lng: lng},
		Timestamp: testEpoch.Add(offset),
		Source:    domain.SourcePush,
	}
}

func newTestInterpolator() (*Interpolator, *clock.Fake) {
	clk := clock.NewFake(testEpoch)
	interp := NewInterpolator(clk, logger.New("test"), 50*time.Millisecond, 2*time.Second, 8*time.Second)
	return interp, clk
}

// driveUntilFinal advances the fake clock in steps until the exact target
// sample comes out of frames, returning everything emitted before it.
func driveUntilFinal(t *testing.T, clk *clock.Fake, frames <-chan domain.PositionSample, target domain.PositionSample) []domain.PositionSample {
	t.Helper()

	var seen []domain.PositionSample
	for i := 0; i < 400; i++ {
		clk.Advance(100 * time.Millisecond)
		time.Sleep(time.Millisecond) // let the job goroutine drain its ticks

		for {
			select {
			case f := <-frames:
				if f.Point == target.Point && f.Timestamp.Equal(target.Timestamp) {
					return seen
				}
				seen = append(seen, f)
				continue
			default:
			}
			break
		}
	}
	t.Fatalf("target frame never emitted; got %d intermediate frames", len(seen))
	return nil
}

func TestInterpolatorFinalFrameIsTarget(t *testing.T) {
	interp, clk := newTestInterpolator()

	from := sampleAt(12.9700, 77.5930, 0)
	to := sampleAt(12.9750, 77.5990, 5*time.Second)

	frames := make(chan domain.PositionSample, 1024)
	interp.SetTarget("ord-1", from, to, func(f domain.PositionSample) { frames <- f })

	seen := driveUntilFinal(t, clk, frames, to)

	// intermediate frames stay inside the segment's bounding box
	for _, f := range seen {
		if f.Point.Lat < from.Point.Lat || f.Point.Lat > to.Point.Lat {
			t.Fatalf("frame latitude %v escaped [%v, %v]", f.Point.Lat, from.Point.Lat, to.Point.Lat)
		}
		if f.Point.Lng < from.Point.Lng || f.Point.Lng > to.Point.Lng {
			t.Fatalf("frame longitude %v escaped [%v, %v]", f.Point.Lng, from.Point.Lng, to.Point.Lng)
		}
	}

	time.Sleep(5 * time.Millisecond)
	if interp.HasJob("ord-1") {
		t.Fatal("job should be gone after emitting the final frame")
	}
}

func TestInterpolatorCancelSuppressesFrames(t *testing.T) {
	interp, clk := newTestInterpolator()

	from := sampleAt(12.9700, 77.5930, 0)
	to := sampleAt(12.9750, 77.5990, 5*time.Second)

	frames := make(chan domain.PositionSample, 1024)
	interp.SetTarget("ord-1", from, to, func(f domain.PositionSample) { frames <- f })

	// produce at least one frame, then cancel mid-flight
	for i := 0; i < 100 && len(frames) == 0; i++ {
		clk.Advance(100 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}
	if len(frames) == 0 {
		t.Fatal("no frame emitted before cancel")
	}

	interp.Cancel("ord-1")
	for len(frames) > 0 {
		<-frames
	}

	clk.Advance(20 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if n := len(frames); n != 0 {
		t.Fatalf("cancelled job emitted %d more frames", n)
	}
	if interp.HasJob("ord-1") {
		t.Fatal("cancelled job still registered")
	}
}

func TestInterpolatorNewTargetReplacesJob(t *testing.T) {
	interp, clk := newTestInterpolator()

	a := sampleAt(12.9700, 77.5930, 0)
	b := sampleAt(12.9750, 77.5990, 5*time.Second)
	c := sampleAt(12.9800, 77.6050, 10*time.Second)

	first := make(chan domain.PositionSample, 1024)
	second := make(chan domain.PositionSample, 1024)

	interp.SetTarget("ord-1", a, b, func(f domain.PositionSample) { first <- f })
	// SetTarget drains the previous job before starting the new one
	interp.SetTarget("ord-1", b, c, func(f domain.PositionSample) { second <- f })

	stale := len(first)
	driveUntilFinal(t, clk, second, c)

	if len(first) != stale {
		t.Fatalf("replaced job emitted %d more frames after replacement", len(first)-stale)
	}
}

func TestInterpolatorDurationClamp(t *testing.T) {
	interp, _ := newTestInterpolator()

	tests := []struct {
		name string
		from geo.Point
		to   geo.Point
		min  time.Duration
		max  time.Duration
	}{
		{
			// ~0.74km hop: below the floor, clamps up
			name: "short hop clamps to min",
			from: geo.Point{Lat: 12.9700, Lng: 77.5930},
			to:   geo.Point{Lat: 12.9750, Lng: 77.5990},
			min:  2 * time.Second,
			max:  2 * time.Second,
		},
		{
			// ~5km: inside the window, one second per kilometer
			name: "mid leg is proportional",
			from: geo.Point{Lat: 0, Lng: 0},
			to:   geo.Point{Lat: 0.045, Lng: 0},
			min:  4900 * time.Millisecond,
			max:  5100 * time.Millisecond,
		},
		{
			// ~55km: above the ceiling, clamps down
			name: "long jump clamps to max",
			from: geo.Point{Lat: 0, Lng: 0},
			to:   geo.Point{Lat: 0.5, Lng: 0},
			min:  8 * time.Second,
			max:  8 * time.Second,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			from := domain.PositionSample{Point: tc.from}
			to := domain.PositionSample{Point: tc.to}
			got := interp.durationFor(from, to)
			if got < tc.min || got > tc.max {
				t.Fatalf("durationFor = %v, want within [%v, %v]", got, tc.min, tc.max)
			}
		})
	}
}
