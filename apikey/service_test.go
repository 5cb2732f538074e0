package apikey_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/xraph/resthook"
	"github.com/xraph/resthook/apikey"
	"github.com/xraph/resthook/store/memory"
)

func ctx() context.Context { return context.Background() }

func newService(t *testing.T, env string) (*apikey.Service, *memory.Store) {
	t.Helper()
	s := memory.New()
	svc, err := apikey.NewService(s, apikey.Config{Environment: env}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return svc, s
}

var secretPattern = regexp.MustCompile(`^zap_dev_[0-9a-f]{64}$`)

func TestIssueValidateRoundTrip(t *testing.T) {
	svc, _ := newService(t, "dev")

	secret, k, err := svc.Issue(ctx(), "tenant-1", apikey.IssueInput{Label: "zapier"})
	if err != nil {
		t.Fatal(err)
	}
	if !secretPattern.MatchString(secret) {
		t.Fatalf("unexpected secret format %q", secret)
	}
	if k.Prefix != secret[:16] {
		t.Fatalf("prefix = %q, want %q", k.Prefix, secret[:16])
	}
	if k.Hash == secret || k.Hash != apikey.HashSecret(secret) {
		t.Fatal("only the hash of the secret may be stored")
	}

	tenantID, err := svc.Validate(ctx(), secret)
	if err != nil {
		t.Fatal(err)
	}
	if tenantID != "tenant-1" {
		t.Fatalf("tenant = %q", tenantID)
	}

	got, err := svc.Get(ctx(), k.ID, "tenant-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.LastUsedAt == nil {
		t.Fatal("expected LastUsedAt to be recorded")
	}
}

func TestValidateRejectsWithOneError(t *testing.T) {
	svc, _ := newService(t, "dev")

	secret, k, err := svc.Issue(ctx(), "tenant-1", apikey.IssueInput{})
	if err != nil {
		t.Fatal(err)
	}

	cases := []string{
		"",
		"not-a-key",
		"zap_dev_" + "00000000000000000000000000000000000000000000000000000000000000",
		secret + "x",
	}
	for _, c := range cases {
		if _, err := svc.Validate(ctx(), c); !errors.Is(err, resthook.ErrUnauthenticated) {
			t.Fatalf("Validate(%q): expected ErrUnauthenticated, got %v", c, err)
		}
	}

	if err := svc.Revoke(ctx(), k.ID, "tenant-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Validate(ctx(), secret); !errors.Is(err, resthook.ErrUnauthenticated) {
		t.Fatalf("revoked key: expected ErrUnauthenticated, got %v", err)
	}

	// Revoke is idempotent.
	if err := svc.Revoke(ctx(), k.ID, "tenant-1"); err != nil {
		t.Fatal(err)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	svc, _ := newService(t, "dev")

	soon := time.Now().Add(50 * time.Millisecond)
	secret, _, err := svc.Issue(ctx(), "tenant-1", apikey.IssueInput{ExpiresAt: &soon})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Validate(ctx(), secret); err != nil {
		t.Fatal("key should be valid before expiry, got:", err)
	}

	time.Sleep(100 * time.Millisecond)

	if _, err := svc.Validate(ctx(), secret); !errors.Is(err, resthook.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after expiry, got %v", err)
	}
}

func TestRevokeIsTenantScoped(t *testing.T) {
	svc, _ := newService(t, "dev")

	secret, k, _ := svc.Issue(ctx(), "tenant-a", apikey.IssueInput{})

	err := svc.Revoke(ctx(), k.ID, "tenant-b")
	if !errors.Is(err, resthook.ErrAPIKeyNotFound) {
		t.Fatalf("expected ErrAPIKeyNotFound, got %v", err)
	}

	if _, err := svc.Validate(ctx(), secret); err != nil {
		t.Fatal("foreign revoke must leave the key usable, got:", err)
	}

	if _, err := svc.Get(ctx(), k.ID, "tenant-b"); !errors.Is(err, resthook.ErrAPIKeyNotFound) {
		t.Fatalf("expected ErrAPIKeyNotFound from foreign Get, got %v", err)
	}
}

func TestIssueValidation(t *testing.T) {
	svc, _ := newService(t, "")

	var ve *apikey.ValidationError
	if _, _, err := svc.Issue(ctx(), "", apikey.IssueInput{}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for empty tenant, got %v", err)
	}

	past := time.Now().Add(-time.Hour)
	if _, _, err := svc.Issue(ctx(), "t1", apikey.IssueInput{ExpiresAt: &past}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for past expiry, got %v", err)
	}

	secret, _, err := svc.Issue(ctx(), "t1", apikey.IssueInput{})
	if err != nil {
		t.Fatal(err)
	}
	if secret[:9] != "zap_live_" {
		t.Fatalf("default environment should be live, got %q", secret[:9])
	}
}

func TestNewServiceRejectsBadEnvironment(t *testing.T) {
	if _, err := apikey.NewService(memory.New(), apikey.Config{Environment: "Prod_1"}, nil); err == nil {
		t.Fatal("expected error for invalid environment")
	}
}

func TestListNewestFirst(t *testing.T) {
	svc, _ := newService(t, "dev")

	_, first, _ := svc.Issue(ctx(), "t1", apikey.IssueInput{Label: "first"})
	time.Sleep(2 * time.Millisecond)
	_, second, _ := svc.Issue(ctx(), "t1", apikey.IssueInput{Label: "second"})
	_, _, _ = svc.Issue(ctx(), "t2", apikey.IssueInput{Label: "other"})

	keys, err := svc.List(ctx(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
	if keys[0].ID.String() != second.ID.String() || keys[1].ID.String() != first.ID.String() {
		t.Fatal("expected newest first")
	}
}
