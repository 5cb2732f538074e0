package subscription_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/store/memory"
	"github.com/xraph/resthook/subscription"
)

func ctx() context.Context { return context.Background() }

func newService() *subscription.Service {
	return subscription.NewService(memory.New(), nil)
}

func TestSubscribeTwiceReturnsSameRow(t *testing.T) {
	svc := newService()
	url := "https://hooks.example.com/bookings"

	first, err := svc.Subscribe(ctx(), "tenant-1", catalog.EventBookingCreated, url)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Subscribe(ctx(), "tenant-1", catalog.EventBookingCreated, url)
	if err != nil {
		t.Fatal(err)
	}

	if first.ID.String() != second.ID.String() {
		t.Fatalf("expected same id, got %s and %s", first.ID, second.ID)
	}

	all, _ := svc.List(ctx(), "tenant-1", subscription.ListOpts{})
	if len(all) != 1 {
		t.Fatalf("expected one row, got %d", len(all))
	}
}

func TestUnsubscribeThenResubscribe(t *testing.T) {
	svc := newService()
	url := "https://hooks.example.com/bookings"

	sub, _ := svc.Subscribe(ctx(), "tenant-1", catalog.EventBookingCreated, url)

	changed, err := svc.Unsubscribe(ctx(), "tenant-1", url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("expected first unsubscribe to report a change")
	}

	changed, err = svc.Unsubscribe(ctx(), "tenant-1", url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Fatal("expected second unsubscribe to report no change")
	}

	active, _ := svc.ListActive(ctx(), "tenant-1", nil)
	if len(active) != 0 {
		t.Fatalf("expected no active subscriptions, got %d", len(active))
	}

	again, _ := svc.Subscribe(ctx(), "tenant-1", catalog.EventBookingCreated, url)
	if again.ID.String() != sub.ID.String() || !again.Active {
		t.Fatal("resubscribe should reactivate the original row")
	}
}

func TestUnsubscribeOneEventType(t *testing.T) {
	svc := newService()
	url := "https://hooks.example.com/all"

	_, _ = svc.Subscribe(ctx(), "tenant-1", catalog.EventBookingCreated, url)
	_, _ = svc.Subscribe(ctx(), "tenant-1", catalog.EventPaymentReceived, url)

	et := catalog.EventPaymentReceived
	changed, err := svc.Unsubscribe(ctx(), "tenant-1", url, &et)
	if err != nil || !changed {
		t.Fatalf("unsubscribe: changed=%v err=%v", changed, err)
	}

	active, _ := svc.ListActive(ctx(), "tenant-1", nil)
	if len(active) != 1 || active[0].EventType != catalog.EventBookingCreated {
		t.Fatalf("unexpected active set %+v", active)
	}
}

func TestSubscribeValidation(t *testing.T) {
	svc := newService()

	cases := []struct {
		name      string
		tenantID  string
		eventType catalog.EventType
		url       string
		field     string
	}{
		{"missing tenant", "", catalog.EventBookingCreated, "https://a.example", "tenant_id"},
		{"unknown event", "t1", "invoice.created", "https://a.example", "event_type"},
		{"missing url", "t1", catalog.EventBookingCreated, "", "target_url"},
		{"relative url", "t1", catalog.EventBookingCreated, "/hooks", "target_url"},
		{"ftp url", "t1", catalog.EventBookingCreated, "ftp://a.example/x", "target_url"},
		{"no host", "t1", catalog.EventBookingCreated, "https://", "target_url"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Subscribe(ctx(), tc.tenantID, tc.eventType, tc.url)

			var ve *subscription.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tc.field {
				t.Fatalf("field = %q, want %q", ve.Field, tc.field)
			}
		})
	}

	all, _ := svc.List(ctx(), "t1", subscription.ListOpts{})
	if len(all) != 0 {
		t.Fatal("invalid input must not be persisted")
	}
}

func TestListActiveIsTenantScoped(t *testing.T) {
	svc := newService()

	_, _ = svc.Subscribe(ctx(), "tenant-a", catalog.EventTripCreated, "https://a.example/hook")
	_, _ = svc.Subscribe(ctx(), "tenant-b", catalog.EventTripCreated, "https://b.example/hook")

	et := catalog.EventTripCreated
	subs, err := svc.ListActive(ctx(), "tenant-a", &et)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 || subs[0].TargetURL != "https://a.example/hook" {
		t.Fatalf("unexpected subscriptions %+v", subs)
	}
}
