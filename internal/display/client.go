package display

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fleet-signage/internal/fleet"
)

// Consumer reacts to landmark events. Consumers never see each other's
// suppression decisions.
type Consumer interface {
	Consume(ev fleet.LandmarkEvent)
}

// Client keeps a websocket open to the announcement hub and hands every
// landmark event to each consumer.
type Client struct {
	url       string
	consumers []Consumer
	log       *zap.Logger
	dialer    *websocket.Dialer

	minBackoff time.Duration
	maxBackoff time.Duration
	wait       func(ctx context.Context, d time.Duration) bool
}

func NewClient(wsURL, busID string, logger *zap.Logger, consumers ...Consumer) (*Client, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}
	if busID = strings.TrimSpace(busID); busID != "" {
		q := u.Query()
		q.Set("bus", busID)
		u.RawQuery = q.Encode()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:        u.String(),
		consumers:  consumers,
		log:        logger,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		wait:       sleep,
	}, nil
}

// Run reconnects with exponential backoff until ctx is cancelled. The
// backoff starts over after every session that managed to connect.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.minBackoff
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = c.minBackoff
		}
		c.log.Warn("display connection lost", zap.String("url", c.url), zap.Error(err), zap.Duration("retry_in", backoff))
		if !c.wait(ctx, backoff) {
			return nil
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// session reports whether it connected, and the error that ended it.
func (c *Client) session(ctx context.Context) (bool, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	c.log.Info("display connected", zap.String("url", c.url))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var ev fleet.LandmarkEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.log.Debug("ignoring undecodable message", zap.Error(err))
		return
	}
	if ev.Type != fleet.EventTypeLandmark {
		return
	}
	c.log.Info("landmark event", zap.String("name", ev.Name), zap.String("stage", string(ev.Stage)))
	for _, consumer := range c.consumers {
		consumer.Consume(ev)
	}
}
