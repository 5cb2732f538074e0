package delivery

import (
	"net/http"
	"time"
)

// Decision is the outcome of evaluating a delivery attempt.
type Decision int

const (
	// Delivered means the receiver answered 2xx.
	Delivered Decision = iota

	// Retry means the job goes back to the queue.
	Retry

	// Exhausted means the last permitted attempt failed.
	Exhausted

	// Gone means the receiver answered 410 and asked to be unsubscribed.
	Gone
)

func (d Decision) String() string {
	switch d {
	case Delivered:
		return "delivered"
	case Retry:
		return "retry"
	case Exhausted:
		return "exhausted"
	case Gone:
		return "gone"
	default:
		return "unknown"
	}
}

// Result holds the outcome of a single delivery attempt.
type Result struct {
	StatusCode int
	Error      string
	Response   string
	LatencyMs  int
}

// OK reports whether the receiver accepted the delivery.
func (r Result) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Retrier decides what happens after an attempt and when the next one runs.
// The delay before attempt n+1 is base * 2^(n-1), capped at max.
type Retrier struct {
	base time.Duration
	max  time.Duration
	now  func() time.Time
}

// NewRetrier returns a Retrier. A non-positive max disables the cap.
func NewRetrier(base, max time.Duration) *Retrier {
	return &Retrier{
		base: base,
		max:  max,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Decide classifies the result of attempt j.Attempt.
func (r *Retrier) Decide(res Result, j *Job) Decision {
	if res.OK() {
		return Delivered
	}
	if res.StatusCode == http.StatusGone {
		return Gone
	}
	if j.Attempt < j.MaxAttempts {
		return Retry
	}
	return Exhausted
}

// Backoff returns the delay after a failed attempt number attempt.
func (r *Retrier) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := r.base
	for i := 1; i < attempt; i++ {
		d *= 2
		if r.max > 0 && d >= r.max {
			return r.max
		}
		if d <= 0 {
			// Overflowed without a cap.
			return time.Duration(1<<63 - 1)
		}
	}

	if r.max > 0 && d > r.max {
		return r.max
	}
	return d
}

// NextAttemptAt returns when the attempt after attempt should run.
func (r *Retrier) NextAttemptAt(attempt int) time.Time {
	return r.now().Add(r.Backoff(attempt))
}
