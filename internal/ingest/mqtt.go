package ingest

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"fleet-signage/internal/announce"
	"fleet-signage/internal/fleet"
)

const handleTimeout = 5 * time.Second

// Handler is satisfied by *announce.Service.
type Handler interface {
	HandleGPS(ctx context.Context, in fleet.GPSSample) announce.Result
}

type Metrics interface {
	MQTTSetConnected(connected bool)
	MQTTMessageInc(result string)
}

// Subscriber feeds GPS samples published by on-bus relays into the
// announcement service.
type Subscriber struct {
	client  mqtt.Client
	topic   string
	h       Handler
	metrics Metrics
	log     *zap.Logger
}

func NewSubscriber(broker, clientID, topic string, h Handler, m Metrics, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Subscriber{topic: topic, h: h, metrics: m, log: logger}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false)
	// Subscriptions are re-established on every (re)connect.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.setConnected(true)
		token := c.Subscribe(s.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			s.handle(msg.Topic(), msg.Payload())
		})
		token.Wait()
		if err := token.Error(); err != nil {
			s.log.Error("mqtt subscribe failed", zap.String("topic", s.topic), zap.Error(err))
			return
		}
		s.log.Info("mqtt subscribed", zap.String("topic", s.topic))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		s.log.Warn("mqtt connection lost", zap.Error(err))
	})
	s.client = mqtt.NewClient(opts)
	return s
}

// Start connects in the background; the client keeps retrying until Stop.
func (s *Subscriber) Start() {
	s.client.Connect()
	s.log.Info("mqtt connecting", zap.String("topic", s.topic))
}

func (s *Subscriber) Stop() {
	if s.client.IsConnectionOpen() {
		s.client.Unsubscribe(s.topic).WaitTimeout(time.Second)
	}
	s.client.Disconnect(250)
	s.setConnected(false)
}

func (s *Subscriber) handle(topic string, payload []byte) {
	sample, err := Decode(topic, payload)
	if err != nil {
		s.log.Debug("dropping gps message", zap.String("topic", topic), zap.Error(err))
		s.messageInc("decode_error")
		return
	}
	s.messageInc("ok")

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	res := s.h.HandleGPS(ctx, sample)
	s.log.Debug("gps sample handled",
		zap.String("bus", sample.BusID),
		zap.Bool("ok", res.OK),
		zap.Bool("announced", res.Announced),
		zap.String("reason", res.Reason))
}

func (s *Subscriber) setConnected(b bool) {
	if s.metrics != nil {
		s.metrics.MQTTSetConnected(b)
	}
}

func (s *Subscriber) messageInc(result string) {
	if s.metrics != nil {
		s.metrics.MQTTMessageInc(result)
	}
}
