package deliverylog_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/deliverylog"
	"github.com/xraph/resthook/id"
	"github.com/xraph/resthook/internal/entity"
	"github.com/xraph/resthook/store/memory"
	"github.com/xraph/resthook/subscription"
)

func ctx() context.Context { return context.Background() }

func TestStatsEmptyTenant(t *testing.T) {
	s := memory.New()
	svc := deliverylog.NewService(s, s, nil)

	stats, err := svc.Stats(ctx(), "nobody")
	if err != nil {
		t.Fatal(err)
	}

	if stats.TotalSubscriptions != 0 || stats.ActiveSubscriptions != 0 ||
		stats.TotalDeliveries != 0 || stats.SuccessfulDeliveries != 0 || stats.FailedDeliveries != 0 {
		t.Fatalf("expected zero counts, got %+v", stats)
	}
	if stats.RecentDeliveries == nil || len(stats.RecentDeliveries) != 0 {
		t.Fatal("expected an empty, non-nil recent list")
	}

	raw, _ := json.Marshal(stats)
	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)
	if list, ok := decoded["recent_deliveries"].([]any); !ok || len(list) != 0 {
		t.Fatalf("recent_deliveries should encode as [], got %s", raw)
	}
}

func TestStatsCountsAndRecent(t *testing.T) {
	s := memory.New()
	svc := deliverylog.NewService(s, s, nil)
	subs := subscription.NewService(s, nil)

	sub, err := subs.Subscribe(ctx(), "t1", catalog.EventBookingCreated, "https://a.example/hook")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = subs.Subscribe(ctx(), "t1", catalog.EventPaymentReceived, "https://a.example/hook")
	et := catalog.EventPaymentReceived
	_, _ = subs.Unsubscribe(ctx(), "t1", "https://a.example/hook", &et)

	base := time.Now().UTC().Add(-time.Hour)
	jobID := id.NewJobID()
	for i := 0; i < 14; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		status := deliverylog.StatusSuccess
		if i%2 == 1 {
			status = deliverylog.StatusFailed
		}
		if i == 13 {
			status = deliverylog.StatusPending
		}
		if err := s.CreateEntry(ctx(), &deliverylog.Entry{
			Entity:         entity.Entity{CreatedAt: at, UpdatedAt: at},
			ID:             id.NewLogEntryID(),
			JobID:          jobID,
			SubscriptionID: sub.ID,
			TenantID:       "t1",
			EventType:      catalog.EventBookingCreated,
			Attempt:        i + 1,
			Status:         status,
		}); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := svc.Stats(ctx(), "t1")
	if err != nil {
		t.Fatal(err)
	}

	if stats.TotalSubscriptions != 2 || stats.ActiveSubscriptions != 1 {
		t.Fatalf("subscription counts = %d/%d", stats.TotalSubscriptions, stats.ActiveSubscriptions)
	}
	if stats.TotalDeliveries != 14 {
		t.Fatalf("total deliveries = %d", stats.TotalDeliveries)
	}
	if stats.SuccessfulDeliveries != 7 || stats.FailedDeliveries != 6 {
		t.Fatalf("success/failed = %d/%d", stats.SuccessfulDeliveries, stats.FailedDeliveries)
	}

	if len(stats.RecentDeliveries) != 10 {
		t.Fatalf("expected 10 recent deliveries, got %d", len(stats.RecentDeliveries))
	}
	if stats.RecentDeliveries[0].Attempt != 14 {
		t.Fatalf("expected newest first, got attempt %d", stats.RecentDeliveries[0].Attempt)
	}

	// Other tenants see nothing.
	other, _ := svc.Stats(ctx(), "t2")
	if other.TotalDeliveries != 0 || len(other.RecentDeliveries) != 0 {
		t.Fatal("stats leaked across tenants")
	}
}

func TestHistoryFiltersByStatus(t *testing.T) {
	s := memory.New()
	svc := deliverylog.NewService(s, s, nil)

	subID := id.NewSubscriptionID()
	for i, status := range []deliverylog.Status{deliverylog.StatusFailed, deliverylog.StatusFailed, deliverylog.StatusSuccess} {
		at := time.Now().UTC().Add(time.Duration(i) * time.Second)
		_ = s.CreateEntry(ctx(), &deliverylog.Entry{
			Entity:         entity.Entity{CreatedAt: at, UpdatedAt: at},
			ID:             id.NewLogEntryID(),
			SubscriptionID: subID,
			TenantID:       "t1",
			Attempt:        i + 1,
			Status:         status,
		})
	}

	failed := deliverylog.StatusFailed
	entries, err := svc.History(ctx(), subID, deliverylog.ListOpts{Status: &failed})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 failed entries, got %d", len(entries))
	}

	page, _ := svc.History(ctx(), subID, deliverylog.ListOpts{Limit: 1})
	if len(page) != 1 || page[0].Status != deliverylog.StatusSuccess {
		t.Fatal("expected the newest entry on the first page")
	}
}
