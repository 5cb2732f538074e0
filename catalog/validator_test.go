package catalog_test

import (
	"errors"
	"testing"

	"github.com/xraph/resthook/catalog"
)

func TestValidatorAcceptsRequiredField(t *testing.T) {
	v := catalog.NewValidator()

	if err := v.Validate(catalog.EventBookingCreated, []byte(`{"bookingId":"bk_1"}`)); err != nil {
		t.Fatal("valid payload should pass, got:", err)
	}
}

func TestValidatorRejects(t *testing.T) {
	v := catalog.NewValidator()

	cases := []struct {
		name string
		typ  catalog.EventType
		body string
	}{
		{"missing id", catalog.EventBookingCreated, `{"customerId":"cus_1"}`},
		{"empty id", catalog.EventPaymentReceived, `{"paymentId":""}`},
		{"wrong type", catalog.EventTripCreated, `{"tripId":42}`},
		{"not an object", catalog.EventCustomerCreated, `["cus_1"]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := v.Validate(tc.typ, []byte(tc.body)); err == nil {
				t.Fatalf("expected %s to fail validation", tc.body)
			}
		})
	}
}

func TestValidatorUnknownType(t *testing.T) {
	v := catalog.NewValidator()

	err := v.Validate(catalog.EventType("invoice.created"), []byte(`{}`))
	if !errors.Is(err, catalog.ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
}

func TestValidatorSamplesPassTheirSchema(t *testing.T) {
	v := catalog.NewValidator()

	// Run twice so the second pass is served from the cache.
	for range 2 {
		for _, def := range catalog.Definitions() {
			if err := v.Validate(def.Key, def.Sample); err != nil {
				t.Fatalf("sample for %s fails its schema: %v", def.Key, err)
			}
		}
	}
}
