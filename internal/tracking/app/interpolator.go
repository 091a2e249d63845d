package app

import (
	"sync"
	"time"

	"delivery-tracking/internal/domain/geo"
	"delivery-tracking/internal/general/clock"
	"delivery-tracking/internal/general/logger"
	"delivery-tracking/internal/tracking/domain"
)

// Interpolator synthesizes smooth motion between a session's last known
// position and each newly accepted sample. At most one job runs per
// session: a new target cancels the previous job before starting, and a
// cancelled job emits no further frames.
type Interpolator struct {
	clock  clock.Clock
	logger *logger.Logger

	tick   time.Duration // frame interval
	minDur time.Duration
	maxDur time.Duration

	mu   sync.Mutex
	jobs map[string]*interpJob
}

type interpJob struct {
	cancel chan struct{}
	done   chan struct{}
}

func NewInterpolator(clk clock.Clock, log *logger.Logger, tick, minDur, maxDur time.Duration) *Interpolator {
	return &Interpolator{
		clock:  clk,
		logger: log,
		tick:   tick,
		minDur: minDur,
		maxDur: maxDur,
		jobs:   make(map[string]*interpJob),
	}
}

// SetTarget starts interpolating from one sample toward the next,
// emitting frames through emit. The duration is proportional to the
// great-circle distance, clamped to the configured window; the final
// frame is exactly the target sample. Any running job for the session
// is cancelled and drained before the new one starts.
func (i *Interpolator) SetTarget(orderID string, from, to domain.PositionSample, emit func(domain.PositionSample)) {
	i.cancelAndWait(orderID)

	dur := i.durationFor(from, to)
	job := &interpJob{
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}

	i.mu.Lock()
	i.jobs[orderID] = job
	i.mu.Unlock()

	go i.run(orderID, job, from, to, dur, emit)
}

// Cancel stops the session's running job, if any, and waits until it
// has emitted its last frame.
func (i *Interpolator) Cancel(orderID string) {
	i.cancelAndWait(orderID)
}

// HasJob reports whether a job is currently running for the session.
func (i *Interpolator) HasJob(orderID string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.jobs[orderID]
	return ok
}

func (i *Interpolator) cancelAndWait(orderID string) {
	i.mu.Lock()
	job := i.jobs[orderID]
	if job != nil {
		delete(i.jobs, orderID)
	}
	i.mu.Unlock()

	if job != nil {
		close(job.cancel)
		<-job.done
	}
}

// durationFor maps distance to animation time: one second per kilometer,
// clamped to the [minDur, maxDur] window.
func (i *Interpolator) durationFor(from, to domain.PositionSample) time.Duration {
	distKm := geo.HaversineDistanceKm(from.Point, to.Point)
	dur := time.Duration(distKm * float64(time.Second))
	if dur < i.minDur {
		dur = i.minDur
	}
	if dur > i.maxDur {
		dur = i.maxDur
	}
	return dur
}

func (i *Interpolator) run(orderID string, job *interpJob, from, to domain.PositionSample, dur time.Duration, emit func(domain.PositionSample)) {
	defer close(job.done)
	defer func() {
		i.mu.Lock()
		if i.jobs[orderID] == job {
			delete(i.jobs, orderID)
		}
		i.mu.Unlock()
	}()

	start := i.clock.Now()
	ticker := i.clock.NewTicker(i.tick)
	defer ticker.Stop()

	for {
		select {
		case <-job.cancel:
			return
		case now := <-ticker.C():
			t := float64(now.Sub(start)) / float64(dur)
			if t >= 1 {
				// re-check so a cancellation racing the final tick wins
				select {
				case <-job.cancel:
					return
				default:
				}
				emit(to)
				return
			}
			select {
			case <-job.cancel:
				return
			default:
			}
			emit(frameBetween(from, to, t))
		}
	}
}

// frameBetween builds the intermediate sample at progress t, applying
// the ease-in-out cubic time warp to the linear lat/lng interpolation.
func frameBetween(from, to domain.PositionSample, t float64) domain.PositionSample {
	eased := easeInOutCubic(t)
	frame := to
	frame.Point = geo.Point{
		Lat: from.Point.Lat + (to.Point.Lat-from.Point.Lat)*eased,
		Lng: from.Point.Lng + (to.Point.Lng-from.Point.Lng)*eased,
	}
	frame.Timestamp = from.Timestamp.Add(time.Duration(eased * float64(to.Timestamp.Sub(from.Timestamp))))
	return frame
}

// easeInOutCubic accelerates into and decelerates out of the motion.
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	u := -2*t + 2
	return 1 - u*u*u/2
}
