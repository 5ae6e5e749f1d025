package fanout

import (
	"context"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// NatsConfig configures the broker connection.
type NatsConfig struct {
	Servers       []string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
	Username      string
	Password      string
}

func (c *NatsConfig) norm() {
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 500 * time.Millisecond
	}
	if c.Timeout == 0 {
		c.Timeout = 3 * time.Second
	}
	if c.Name == "" {
		c.Name = "convoy-gateway"
	}
}

// NatsBus is the production Bus: plain core NATS, no JetStream. Core
// subjects already give at-most-once fan-out to every subscriber, which
// is exactly the guarantee the room model asks for.
type NatsBus struct {
	nc *nats.Conn
}

func NewNatsBus(cfg NatsConfig) (*NatsBus, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	cfg.norm()

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "connect nats")
	}
	return &NatsBus{nc: nc}, nil
}

func (b *NatsBus) Publish(_ context.Context, topic string, data []byte) error {
	if err := b.nc.Publish(topic, data); err != nil {
		return errors.Wrapf(err, "publish %s", topic)
	}
	return nil
}

func (b *NatsBus) Subscribe(topic string, h Handler) (Subscription, error) {
	sub, err := b.nc.Subscribe(topic, func(m *nats.Msg) {
		h(m.Subject, append([]byte(nil), m.Data...))
	})
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe %s", topic)
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
	return natsSub{sub}, nil
}

func (b *NatsBus) Close() error {
	return b.nc.Drain()
}

// Ping reports broker connectivity for the health endpoint.
func (b *NatsBus) Ping() bool { return b.nc.IsConnected() }

type natsSub struct{ s *nats.Subscription }

func (n natsSub) Unsubscribe() error { return n.s.Unsubscribe() }
