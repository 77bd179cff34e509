// Package natsutil provides typed NATS publish/subscribe helpers with
// OpenTelemetry trace propagation, and a fire-and-forget event publisher.
package natsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Publish serializes v as JSON and publishes to the given subject.
// Trace context from ctx is injected into NATS message headers.
func Publish[T any](ctx context.Context, nc *nats.Conn, subject string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("natsutil: marshal %s: %w", subject, err)
	}
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
	}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	if err := nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("natsutil: publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler that deserializes JSON messages of type T.
// Trace context is extracted from NATS message headers and passed to the handler.
// Malformed messages are silently dropped.
func Subscribe[T any](nc *nats.Conn, subject string, handler func(context.Context, T)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			return // drop malformed messages
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
		handler(ctx, v)
	})
}

// Events publishes notifications that nobody is required to consume.
// Failures are logged, never returned. A nil *Events drops everything.
type Events struct {
	nc  *nats.Conn
	log *slog.Logger
}

// Connect dials url. An empty url yields a nil *Events.
func Connect(url string, log *slog.Logger) (*Events, error) {
	if url == "" {
		return nil, nil
	}
	if log == nil {
		log = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("wessley-rag"),
		nats.Timeout(5*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("natsutil: connect %s: %w", url, err)
	}
	return &Events{nc: nc, log: log}, nil
}

// NewEvents wraps an existing connection.
func NewEvents(nc *nats.Conn, log *slog.Logger) *Events {
	if log == nil {
		log = slog.Default()
	}
	return &Events{nc: nc, log: log}
}

// Emit publishes v on subject.
func (e *Events) Emit(ctx context.Context, subject string, v any) {
	if e == nil {
		return
	}
	if err := Publish(ctx, e.nc, subject, v); err != nil {
		e.log.Warn("event publish failed", "subject", subject, "err", err)
	}
}

// Close drains pending messages and closes the connection.
func (e *Events) Close() error {
	if e == nil {
		return nil
	}
	return e.nc.Drain()
}
