package redis_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/resthook"
	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/id"
	"github.com/xraph/resthook/internal/entity"
	"github.com/xraph/resthook/store/redis"
	"github.com/xraph/resthook/subscription"
)

func ctx() context.Context { return context.Background() }

func newStore(t *testing.T) *redis.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := redis.NewFromClient(client)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newSub(tenantID string, et catalog.EventType, url string) *subscription.Subscription {
	return &subscription.Subscription{
		Entity:    entity.New(),
		ID:        id.NewSubscriptionID(),
		TenantID:  tenantID,
		EventType: et,
		TargetURL: url,
		Active:    true,
	}
}

func TestUpsertReactivatesExistingRow(t *testing.T) {
	s := newStore(t)
	url := "https://a.example/hook"

	first, err := s.UpsertSubscription(ctx(), newSub("t1", catalog.EventBookingCreated, url))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RecordFailure(ctx(), first.ID, "HTTP 500"); err != nil {
		t.Fatal(err)
	}

	n, err := s.Deactivate(ctx(), "t1", url, nil)
	if err != nil || n != 1 {
		t.Fatalf("deactivate = %d, %v", n, err)
	}
	if n, _ := s.Deactivate(ctx(), "t1", url, nil); n != 0 {
		t.Fatalf("expected 0 on second deactivate, got %d", n)
	}

	active, _ := s.ListActive(ctx(), "t1", nil)
	if len(active) != 0 {
		t.Fatalf("expected no active subscriptions, got %d", len(active))
	}

	second, err := s.UpsertSubscription(ctx(), newSub("t1", catalog.EventBookingCreated, url))
	if err != nil {
		t.Fatal(err)
	}
	if second.ID.String() != first.ID.String() {
		t.Fatalf("expected original id %s, got %s", first.ID, second.ID)
	}
	if !second.Active || second.FailureCount != 1 || second.LastError != "HTTP 500" {
		t.Fatalf("unexpected reactivated row %+v", second)
	}

	et := catalog.EventBookingCreated
	active, _ = s.ListActive(ctx(), "t1", &et)
	if len(active) != 1 {
		t.Fatalf("expected 1 active subscription, got %d", len(active))
	}

	counts, _ := s.CountSubscriptions(ctx(), "t1")
	if counts.Total != 1 || counts.Active != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestRecordFailureUnknownSubscription(t *testing.T) {
	s := newStore(t)
	if err := s.RecordFailure(ctx(), id.NewSubscriptionID(), "x"); !errors.Is(err, resthook.ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}

func TestFailureCountSurvivesConcurrentToggling(t *testing.T) {
	s := newStore(t)
	url := "https://a.example/hook"

	sub, err := s.UpsertSubscription(ctx(), newSub("t1", catalog.EventBookingCreated, url))
	if err != nil {
		t.Fatal(err)
	}

	const failures = 300
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for range failures {
			if err := s.RecordFailure(ctx(), sub.ID, "HTTP 500"); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if _, err := s.Deactivate(ctx(), "t1", url, nil); err != nil {
				t.Error(err)
				return
			}
			if _, err := s.UpsertSubscription(ctx(), newSub("t1", catalog.EventBookingCreated, url)); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	wg.Wait()

	got, err := s.GetSubscription(ctx(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.FailureCount != failures {
		t.Fatalf("failure_count = %d, want %d", got.FailureCount, failures)
	}
}
