package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/licensa/internal/telemetry"
	"github.com/nats-io/nats.go"
)

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	PublishMsg(m *nats.Msg) error
	Drain() error
}

// NATSPublisher publishes JSON envelopes to core NATS subjects.
type NATSPublisher struct {
	nc     conn
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NATSConfig configures the NATS publisher.
type NATSConfig struct {
	URL string

	// Prefix is prepended to every subject, e.g. "licensa." gives
	// "licensa.orders.created".
	Prefix string

	// Name identifies this client in NATS monitoring.
	Name string
}

// NewNATSPublisher connects to NATS. The connection reconnects forever;
// publishes made while disconnected are buffered by the client.
func NewNATSPublisher(cfg NATSConfig, logger *slog.Logger) (*NATSPublisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	if cfg.Name == "" {
		cfg.Name = "licensa"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return newNATSPublisher(nc, cfg.Prefix, logger), nil
}

func newNATSPublisher(nc conn, prefix string, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{
		nc:     nc,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
	}
}

// Publish wraps data in an Envelope and publishes it. The envelope id is also
// sent as the Nats-Msg-Id header so JetStream streams can de-duplicate.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env, err := newEnvelope(subject, data, p.now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := nats.NewMsg(p.prefix + subject)
	msg.Data = body
	msg.Header.Set(nats.MsgIdHdr, env.ID)

	err = p.nc.PublishMsg(msg)
	if telemetry.Business != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		telemetry.Business.EventsPublished.WithLabelValues(subject, result).Inc()
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.logger.Debug("event published", "subject", msg.Subject, "event_id", env.ID)
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

var _ Publisher = (*NATSPublisher)(nil)
