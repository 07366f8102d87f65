package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Collector struct {
	reg *prometheus.Registry

	GPSSamples    *prometheus.CounterVec // outcome label
	Announcements *prometheus.CounterVec // stage label

	ResolverErrs prometheus.Counter
	StateErrs    prometheus.Counter
	PublishErrs  prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	WSClients prometheus.Gauge
	WSDropped prometheus.Counter

	MQTTConnected prometheus.Gauge
	MQTTMessages  *prometheus.CounterVec // result label: ok|decode_error

	ApproachMeters prometheus.Gauge
	RepeatWindow   prometheus.Gauge // seconds
}

func NewCollector(approachMeters float64, repeatWindow time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		GPSSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signage_gps_samples_total",
			Help: "GPS samples handled, by outcome.",
		}, []string{"outcome"}),
		Announcements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signage_announcements_total",
			Help: "Landmark announcements emitted, by stage.",
		}, []string{"stage"}),
		ResolverErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signage_waypoint_lookup_errors_total",
			Help: "Waypoint store lookups that failed and were treated as unconfigured.",
		}),
		StateErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signage_state_store_errors_total",
			Help: "Announcement state store read or write errors.",
		}),
		PublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signage_publish_errors_total",
			Help: "Landmark events that failed to reach at least one sink.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signage_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signage_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signage_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signage_publish_duration_seconds",
			Help:    "Duration to publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signage_ws_clients",
			Help: "Connected display websockets.",
		}),
		WSDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signage_ws_dropped_total",
			Help: "Displays disconnected for falling behind.",
		}),
		MQTTConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signage_mqtt_connected",
			Help: "1 if the MQTT GPS subscriber is connected, 0 otherwise.",
		}),
		MQTTMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signage_mqtt_messages_total",
			Help: "MQTT GPS messages received, by decode result.",
		}, []string{"result"}),
		ApproachMeters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signage_approach_window_meters",
			Help: "Approach window in meters.",
		}),
		RepeatWindow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signage_repeat_window_seconds",
			Help: "Minimum interval between repeated REACHED announcements.",
		}),
	}

	reg.MustRegister(
		c.GPSSamples, c.Announcements,
		c.ResolverErrs, c.StateErrs, c.PublishErrs,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.WSClients, c.WSDropped,
		c.MQTTConnected, c.MQTTMessages,
		c.ApproachMeters, c.RepeatWindow,
	)

	c.ApproachMeters.Set(approachMeters)
	c.RepeatWindow.Set(repeatWindow.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	logger.Info("metrics listening", zap.String("addr", addr))
	return srv
}
