package natsutil

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func startTestNATS(t *testing.T) (*natsserver.Server, *nats.Conn) {
	t.Helper()
	opts := &natsserver.Options{Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return srv, nc
}

type payload struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestNatsHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)

	carrier.Set("traceparent", "00-abc-def-01")
	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("expected traceparent, got %q", got)
	}
	carrier.Set("traceparent", "00-xyz-def-01")
	if got := carrier.Get("traceparent"); got != "00-xyz-def-01" {
		t.Fatalf("expected overwrite, got %q", got)
	}
	if keys := carrier.Keys(); len(keys) != 1 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestNatsHeaderCarrierNilHeader(t *testing.T) {
	carrier := (*natsHeaderCarrier)(&nats.Msg{})
	if got := carrier.Get("missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if keys := carrier.Keys(); keys != nil {
		t.Fatalf("expected nil keys, got %v", keys)
	}
}

func TestPublishSubscribe(t *testing.T) {
	_, nc := startTestNATS(t)

	got := make(chan payload, 1)
	sub, err := Subscribe(nc, "test.pubsub", func(_ context.Context, p payload) { got <- p })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sub.Unsubscribe()

	if err := Publish(context.Background(), nc, "test.pubsub", payload{Name: "a", Value: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case p := <-got:
		if p.Name != "a" || p.Value != 1 {
			t.Fatalf("unexpected payload: %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestSubscribeDropsMalformed(t *testing.T) {
	_, nc := startTestNATS(t)

	got := make(chan payload, 2)
	sub, err := Subscribe(nc, "test.bad", func(_ context.Context, p payload) { got <- p })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sub.Unsubscribe()

	if err := nc.Publish("test.bad", []byte("not json")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Publish(context.Background(), nc, "test.bad", payload{Name: "ok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case p := <-got:
		if p.Name != "ok" {
			t.Fatalf("expected the well-formed message, got %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishMarshalError(t *testing.T) {
	_, nc := startTestNATS(t)
	if err := Publish(context.Background(), nc, "test.err", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestEventsEmit(t *testing.T) {
	srv, nc := startTestNATS(t)

	got := make(chan payload, 1)
	sub, err := Subscribe(nc, "test.events", func(_ context.Context, p payload) { got <- p })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sub.Unsubscribe()

	ev, err := Connect(srv.ClientURL(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ev.Emit(context.Background(), "test.events", payload{Name: "ingest", Value: 3})
	if err := ev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case p := <-got:
		if p.Name != "ingest" || p.Value != 3 {
			t.Fatalf("unexpected payload: %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventsDisabled(t *testing.T) {
	ev, err := Connect("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev != nil {
		t.Fatal("expected nil events for empty url")
	}
	ev.Emit(context.Background(), "x", payload{})
	if err := ev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
