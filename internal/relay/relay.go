package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	serial "github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"

	"fleet-signage/internal/config"
	"fleet-signage/internal/fleet"
	"fleet-signage/internal/ingest"
)

// heartbeatFactor sets how often a stationary bus still reports, in
// multiples of the minimum interval.
const heartbeatFactor = 3

// Relay reads NMEA from the bus GPS receiver and publishes filtered fixes
// to MQTT topic <prefix>/<busId>.
type Relay struct {
	cfg    *config.RelayConfig
	log    *zap.Logger
	filter *Filter
	topic  string

	// set on start and after each broker reconnect; the next fix is sent
	// with reason client_reconnect
	reconnect atomic.Bool
}

func New(cfg *config.RelayConfig, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Relay{
		cfg: cfg,
		log: logger,
		filter: &Filter{
			MinDistance: cfg.MinDistance,
			MinInterval: cfg.MinInterval,
			Heartbeat:   cfg.MinInterval * heartbeatFactor,
		},
		topic: cfg.TopicPrefix + "/" + cfg.BusID,
	}
	r.reconnect.Store(true)
	return r
}

func (r *Relay) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(r.cfg.MQTTBroker).
		SetClientID(r.cfg.MQTTClientID).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(mqtt.Client) {
			r.reconnect.Store(true)
			r.log.Info("relay connected to broker", zap.String("broker", r.cfg.MQTTBroker))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			r.log.Warn("relay lost broker", zap.Error(err))
		})
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)

	port, err := serial.Open(serial.OpenOptions{
		PortName:        r.cfg.SerialPort,
		BaudRate:        uint(r.cfg.BaudRate),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return err
	}
	r.log.Info("gps serial port opened", zap.String("port", r.cfg.SerialPort), zap.Int("baud", r.cfg.BaudRate))

	// Closing the port unblocks the reader on shutdown.
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	publish := func(payload []byte) error {
		token := client.Publish(r.topic, 0, false, payload)
		if !token.WaitTimeout(5 * time.Second) {
			return errors.New("mqtt publish timed out")
		}
		return token.Error()
	}
	err = r.read(ctx, port, publish)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (r *Relay) read(ctx context.Context, src io.Reader, publish func([]byte) error) error {
	reader := bufio.NewReader(src)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		payload, ok := r.process(line, time.Now())
		if !ok {
			continue
		}
		if err := publish(payload); err != nil {
			r.log.Warn("gps publish failed", zap.Error(err))
			// resend as a reconnect so the server does not debounce it away
			r.reconnect.Store(true)
			continue
		}
		r.log.Debug("gps fix published", zap.String("topic", r.topic))
	}
}

// process turns one NMEA line into a JSON payload, or reports false when the
// line carries no fix or the filter holds it back.
func (r *Relay) process(line string, now time.Time) ([]byte, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nil, false
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		// noisy receivers emit partial sentences
		return nil, false
	}
	if sentence.DataType() != nmea.TypeRMC {
		return nil, false
	}
	lat, lng, err := ingest.Position(sentence)
	if err != nil {
		return nil, false
	}
	reconnect := r.reconnect.Load()
	if !reconnect && !r.filter.Accept(lat, lng, now) {
		return nil, false
	}
	if reconnect {
		r.filter.record(lat, lng, now)
	}

	sample := fleet.GPSSample{BusID: r.cfg.BusID, Lat: &lat, Lng: &lng}
	if reconnect {
		sample.Reason = fleet.ReasonClientReconnect
		r.reconnect.Store(false)
	}
	b, err := json.Marshal(sample)
	if err != nil {
		return nil, false
	}
	return b, true
}
