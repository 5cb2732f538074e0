package scope_test

import (
	"context"
	"testing"

	"github.com/xraph/resthook/scope"
)

func TestCallerRoundTrip(t *testing.T) {
	ctx := scope.WithCaller(context.Background(), scope.Caller{
		TenantID:  "tenant-1",
		KeyID:     "akey_01",
		KeyPrefix: "zap_dev_1a2b3c4d",
	})

	c, ok := scope.FromContext(ctx)
	if !ok {
		t.Fatal("expected caller on context")
	}
	if c.TenantID != "tenant-1" || c.KeyPrefix != "zap_dev_1a2b3c4d" {
		t.Fatalf("unexpected caller %+v", c)
	}
	if scope.TenantID(ctx) != "tenant-1" {
		t.Fatalf("TenantID = %q", scope.TenantID(ctx))
	}
}

func TestEmptyContext(t *testing.T) {
	if _, ok := scope.FromContext(context.Background()); ok {
		t.Fatal("expected no caller")
	}

	ctx := scope.WithCaller(context.Background(), scope.Caller{})
	if _, ok := scope.FromContext(ctx); ok {
		t.Fatal("a caller without tenant must not count as authenticated")
	}
}
