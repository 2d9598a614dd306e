// internal/bus/nats.go
package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultHandlerTimeout bounds a subscription handler when Options leaves it unset.
const DefaultHandlerTimeout = 30 * time.Second

type Options struct {
	Name           string
	Logger         *slog.Logger
	HandlerTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "simple-imagegen"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = DefaultHandlerTimeout
	}
	return o
}

type Client struct {
	nc      *nats.Conn
	timeout time.Duration
}

// Connect dials NATS and keeps reconnecting forever. Connection changes are
// logged through opts.Logger.
func Connect(url string, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	log := opts.Logger.With("nats_url", url)

	nc, err := nats.Connect(url,
		nats.Name(opts.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "server", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info("nats connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			log.Error("nats async error", "subject", subject, "err", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc, timeout: opts.HandlerTimeout}, nil
}

func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

func (c *Client) SubscribeJSON(subject string, handler func(ctx context.Context, data []byte)) (*nats.Subscription, error) {
	return c.nc.Subscribe(subject, withTimeout(c.timeout, handler))
}

// withTimeout adapts handler to a NATS callback, giving each message its own
// deadline.
func withTimeout(timeout time.Duration, handler func(ctx context.Context, data []byte)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		handler(ctx, msg.Data)
	}
}
