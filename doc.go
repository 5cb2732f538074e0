// Package resthook is a REST-Hook subscription and reliable webhook delivery
// engine for multi-tenant applications.
//
// Tenants authenticate with issued API keys, subscribe URLs to domain events
// from a closed catalogue, and the engine delivers each event to every
// active subscription with at-least-once semantics: jobs are persisted,
// claimed by a bounded worker pool under a lease, retried with exponential
// backoff and audited attempt by attempt.
//
// resthook is a library. The daemon in cmd/resthookd is a thin wrapper.
//
// Quick start:
//
//	r, err := resthook.New(resthook.WithStore(memory.New()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r.Start(ctx)
//	defer r.Stop(ctx)
//
//	sub, _ := r.Subscriptions().Subscribe(ctx, "tenant_123",
//	    catalog.EventBookingCreated, "https://hooks.example.com/bookings")
//
//	res, err := r.TriggerPayload(ctx, "tenant_123", catalog.BookingCreated{
//	    Booking: catalog.Booking{BookingID: "bk_1001"},
//	})
package resthook
