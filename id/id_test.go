package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xraph/resthook/id"
)

func TestNewCarriesPrefix(t *testing.T) {
	cases := []struct {
		name   string
		newFn  func() id.ID
		prefix id.Prefix
	}{
		{"api key", id.NewAPIKeyID, id.PrefixAPIKey},
		{"subscription", id.NewSubscriptionID, id.PrefixSubscription},
		{"event", id.NewEventID, id.PrefixEvent},
		{"job", id.NewJobID, id.PrefixJob},
		{"log entry", id.NewLogEntryID, id.PrefixLogEntry},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.newFn()
			if got.Prefix() != tc.prefix {
				t.Fatalf("prefix = %q, want %q", got.Prefix(), tc.prefix)
			}
			if !strings.HasPrefix(got.String(), string(tc.prefix)+"_") {
				t.Fatalf("string %q lacks prefix %q", got.String(), tc.prefix)
			}
		})
	}
}

func TestParseWithPrefixRejectsMismatch(t *testing.T) {
	sub := id.NewSubscriptionID()

	if _, err := id.ParseJobID(sub.String()); err == nil {
		t.Fatal("expected error parsing a subscription id as a job id")
	}

	got, err := id.ParseSubscriptionID(sub.String())
	if err != nil {
		t.Fatalf("ParseSubscriptionID: %v", err)
	}
	if got.String() != sub.String() {
		t.Fatalf("round trip = %s, want %s", got, sub)
	}
}

func TestJSONNilIsEmptyString(t *testing.T) {
	type wrapper struct {
		ID id.ID `json:"id"`
	}

	b, err := json.Marshal(wrapper{})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"id":""}` {
		t.Fatalf("got %s", b)
	}

	var w wrapper
	if err := json.Unmarshal(b, &w); err != nil {
		t.Fatal(err)
	}
	if !w.ID.IsNil() {
		t.Fatal("expected nil id")
	}
}

func TestScan(t *testing.T) {
	want := id.NewJobID()

	var got id.ID
	if err := got.Scan([]byte(want.String())); err != nil {
		t.Fatal(err)
	}
	if got.String() != want.String() {
		t.Fatalf("got %s, want %s", got, want)
	}

	if err := got.Scan(nil); err != nil || !got.IsNil() {
		t.Fatalf("scan nil: %v %v", err, got)
	}

	if err := got.Scan(42); err == nil {
		t.Fatal("expected error scanning int")
	}
}
