package main

import (
	"time"

	"fleet-signage/internal/announce"
	"fleet-signage/internal/fleet"
	"fleet-signage/internal/ingest"
	"fleet-signage/internal/metrics"
	"fleet-signage/internal/publisher"
	"fleet-signage/internal/ws"
)

// The wrappers adapt the Collector to each package's metrics interface and
// return nil when metrics are disabled.

func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool)        { p.c.NATSConnected.Set(gauge(b)) }

func wrapServiceMetrics(c *metrics.Collector) announce.Metrics {
	if c == nil {
		return nil
	}
	return &svcMetrics{c: c}
}

type svcMetrics struct{ c *metrics.Collector }

func (s *svcMetrics) SampleObserve(outcome string) { s.c.GPSSamples.WithLabelValues(outcome).Inc() }
func (s *svcMetrics) AnnouncementInc(stage fleet.Stage) {
	s.c.Announcements.WithLabelValues(string(stage)).Inc()
}
func (s *svcMetrics) ResolverErrInc() { s.c.ResolverErrs.Inc() }
func (s *svcMetrics) PublishErrInc()  { s.c.PublishErrs.Inc() }
func (s *svcMetrics) StateErrInc()    { s.c.StateErrs.Inc() }

func wrapHubMetrics(c *metrics.Collector) ws.HubMetrics {
	if c == nil {
		return nil
	}
	return &hubMetrics{c: c}
}

type hubMetrics struct{ c *metrics.Collector }

func (h *hubMetrics) WSClientsSet(n int) { h.c.WSClients.Set(float64(n)) }
func (h *hubMetrics) WSDroppedInc()      { h.c.WSDropped.Inc() }

func wrapMQTTMetrics(c *metrics.Collector) ingest.Metrics {
	if c == nil {
		return nil
	}
	return &mqttMetrics{c: c}
}

type mqttMetrics struct{ c *metrics.Collector }

func (m *mqttMetrics) MQTTSetConnected(b bool)      { m.c.MQTTConnected.Set(gauge(b)) }
func (m *mqttMetrics) MQTTMessageInc(result string) { m.c.MQTTMessages.WithLabelValues(result).Inc() }

func gauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
