package kit

import (
	"context"
	"testing"
)

func TestContextRoundTrips(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		set  func(context.Context, string) context.Context
		get  func(context.Context) string
	}{
		{"user_id", WithUserID, GetUserID},
		{"request_id", WithRequestID, GetRequestID},
		{"trace_id", WithTraceID, GetTraceID},
		{"remote_addr", WithRemoteAddr, GetRemoteAddr},
		{"transport", WithTransport, GetTransport},
	}

	for _, tt := range tests {
		c := tt.set(ctx, "value-"+tt.name)
		if got := tt.get(c); got != "value-"+tt.name {
			t.Errorf("%s: got %q", tt.name, got)
		}
	}
}

func TestGetTransportDefaultsToHTTP(t *testing.T) {
	if got := GetTransport(context.Background()); got != "http" {
		t.Fatalf("expected http default, got %q", got)
	}
}

func TestUnsetValuesAreEmpty(t *testing.T) {
	ctx := context.Background()
	if GetRequestID(ctx) != "" || GetUserID(ctx) != "" {
		t.Fatal("expected empty values on fresh context")
	}
}
