package connection

import (
	"context"
	"log/slog"
)

// URLSource resolves a bot token to a websocket URL (rtm.connect).
type URLSource interface {
	WebsocketURL(ctx context.Context, tok string) (string, error)
}

// RTMDriver opens Slack RTM sessions.
type RTMDriver struct {
	urls   URLSource
	cfg    ClientConfig
	logger *slog.Logger
}

// NewRTMDriver creates a driver. cfg.URL is ignored; each Open asks urls.
func NewRTMDriver(urls URLSource, cfg ClientConfig, logger *slog.Logger) *RTMDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &RTMDriver{urls: urls, cfg: cfg, logger: logger}
}

// Open starts an RTM session for tok and dials its websocket.
func (d *RTMDriver) Open(ctx context.Context, tok string) (Conn, error) {
	u, err := d.urls.WebsocketURL(ctx, tok)
	if err != nil {
		return nil, &OpenError{Stage: "rtm.connect", Err: err}
	}

	cfg := d.cfg
	cfg.URL = u

	c := NewClient(cfg, d.logger)
	if err := c.Connect(ctx); err != nil {
		c.Close()
		return nil, &OpenError{Stage: "dial", Err: err}
	}
	return c, nil
}
