package delivery_test

import (
	"testing"
	"time"

	"github.com/xraph/resthook/delivery"
)

func TestRetrierDecide(t *testing.T) {
	retrier := delivery.NewRetrier(2*time.Second, time.Hour)

	tests := []struct {
		name   string
		result delivery.Result
		job    *delivery.Job
		want   delivery.Decision
	}{
		{
			name:   "200 OK → Delivered",
			result: delivery.Result{StatusCode: 200},
			job:    &delivery.Job{Attempt: 1, MaxAttempts: 3},
			want:   delivery.Delivered,
		},
		{
			name:   "204 No Content → Delivered",
			result: delivery.Result{StatusCode: 204},
			job:    &delivery.Job{Attempt: 3, MaxAttempts: 3},
			want:   delivery.Delivered,
		},
		{
			name:   "500 → Retry (within limits)",
			result: delivery.Result{StatusCode: 500},
			job:    &delivery.Job{Attempt: 1, MaxAttempts: 3},
			want:   delivery.Retry,
		},
		{
			name:   "503 → Retry (second attempt)",
			result: delivery.Result{StatusCode: 503},
			job:    &delivery.Job{Attempt: 2, MaxAttempts: 3},
			want:   delivery.Retry,
		},
		{
			name:   "500 → Exhausted (last attempt)",
			result: delivery.Result{StatusCode: 500},
			job:    &delivery.Job{Attempt: 3, MaxAttempts: 3},
			want:   delivery.Exhausted,
		},
		{
			name:   "400 → Retry (4xx is not special)",
			result: delivery.Result{StatusCode: 400},
			job:    &delivery.Job{Attempt: 1, MaxAttempts: 3},
			want:   delivery.Retry,
		},
		{
			name:   "301 → Retry (redirect is not success)",
			result: delivery.Result{StatusCode: 301},
			job:    &delivery.Job{Attempt: 1, MaxAttempts: 3},
			want:   delivery.Retry,
		},
		{
			name:   "transport error → Retry",
			result: delivery.Result{Error: "connection refused"},
			job:    &delivery.Job{Attempt: 1, MaxAttempts: 3},
			want:   delivery.Retry,
		},
		{
			name:   "transport error → Exhausted",
			result: delivery.Result{Error: "connection refused"},
			job:    &delivery.Job{Attempt: 3, MaxAttempts: 3},
			want:   delivery.Exhausted,
		},
		{
			name:   "410 Gone → Gone",
			result: delivery.Result{StatusCode: 410},
			job:    &delivery.Job{Attempt: 1, MaxAttempts: 3},
			want:   delivery.Gone,
		},
		{
			name:   "single attempt budget",
			result: delivery.Result{StatusCode: 500},
			job:    &delivery.Job{Attempt: 1, MaxAttempts: 1},
			want:   delivery.Exhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := retrier.Decide(tt.result, tt.job)
			if got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetrierBackoff(t *testing.T) {
	retrier := delivery.NewRetrier(2*time.Second, 10*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{40, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := retrier.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetrierBackoffUncapped(t *testing.T) {
	retrier := delivery.NewRetrier(time.Second, 0)

	prev := time.Duration(0)
	for attempt := 1; attempt <= 80; attempt++ {
		d := retrier.Backoff(attempt)
		if d < prev {
			t.Fatalf("Backoff(%d) = %v decreased from %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestRetrierNextAttemptAt(t *testing.T) {
	retrier := delivery.NewRetrier(2*time.Second, time.Hour)

	before := time.Now().UTC()
	next := retrier.NextAttemptAt(2)

	if next.Before(before.Add(4 * time.Second)) {
		t.Fatalf("next attempt %v is earlier than expected", next)
	}
	if next.After(time.Now().UTC().Add(4 * time.Second)) {
		t.Fatalf("next attempt %v is later than expected", next)
	}
}

func TestDecisionString(t *testing.T) {
	for d, want := range map[delivery.Decision]string{
		delivery.Delivered: "delivered",
		delivery.Retry:     "retry",
		delivery.Exhausted: "exhausted",
		delivery.Gone:      "gone",
		delivery.Decision(99): "unknown",
	} {
		if d.String() != want {
			t.Errorf("%d.String() = %q, want %q", d, d.String(), want)
		}
	}
}
