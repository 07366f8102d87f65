package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"fleet-signage/internal/fleet"
)

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
	log         *zap.Logger
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("fleet-signage"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: subjectToken(prefix), logSubjects: logSubjects, metrics: m, log: logger}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.log.Warn("nats drain", zap.Error(err))
		}
		p.nc.Close()
	}
}

// BusSubject is the per-bus topic; GlobalSubject receives every event.
func BusSubject(prefix, busID string) string {
	return subjectToken(prefix) + ".bus." + busToken(busID)
}

func GlobalSubject(prefix string) string {
	return subjectToken(prefix) + ".all"
}

// PublishLandmark sends the event to the bus subject and the global subject.
func (p *NATSPublisher) PublishLandmark(_ context.Context, ev fleet.LandmarkEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	var errs []error
	for _, subject := range []string{BusSubject(p.prefix, ev.BusID), GlobalSubject(p.prefix)} {
		if err := p.publish(subject, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *NATSPublisher) publish(subject string, b []byte) error {
	if p.logSubjects {
		p.log.Debug("nats publish", zap.String("subject", subject))
	}
	start := time.Now()
	err := p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// busToken escapes a bus id into a single subject token, one to one.
// Letters, digits and '-' pass through; every other byte becomes _XX hex,
// so "UK07.1234" and "UK07_1234" stay on different subjects.
func busToken(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "_"
	}
	var b strings.Builder
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02X", c)
		}
	}
	return b.String()
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
