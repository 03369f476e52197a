package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPCallReturnsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":"42"}}`))
	}))
	defer srv.Close()

	rpc := &HTTP{Endpoint: srv.URL, Timeout: time.Second}
	result, err := rpc.Call(context.Background(), "eth_call", map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(result) != `{"value":"42"}` {
		t.Fatalf("unexpected result: %s", result)
	}
}

func TestHTTPCallPropagatesRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32600,"message":"bad request"}}`))
	}))
	defer srv.Close()

	rpc := &HTTP{Endpoint: srv.URL, Timeout: time.Second}
	if _, err := rpc.Call(context.Background(), "eth_call", nil); err == nil {
		t.Fatalf("expected error from rpc error envelope")
	}
}

func TestHTTPCallSurfacesHTTPStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rpc := &HTTP{Endpoint: srv.URL, Timeout: time.Second}
	if _, err := rpc.Call(context.Background(), "eth_call", nil); err == nil {
		t.Fatalf("expected error from 500 status")
	}
}
