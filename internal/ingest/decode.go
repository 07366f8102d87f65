package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	nmea "github.com/adrianmo/go-nmea"

	"fleet-signage/internal/fleet"
)

var errNoFix = errors.New("nmea sentence carries no valid fix")

// BusFromTopic returns the last level of an MQTT topic such as
// "fleet/gps/UK07-1234".
func BusFromTopic(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return strings.TrimSpace(topic[i+1:])
	}
	return strings.TrimSpace(topic)
}

// Decode turns an MQTT payload into a GPS sample. The payload is either a
// JSON sample or a single NMEA RMC/GGA sentence; the bus id falls back to
// the topic.
func Decode(topic string, payload []byte) (fleet.GPSSample, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return fleet.GPSSample{}, errors.New("empty payload")
	}
	if payload[0] == '$' || payload[0] == '!' {
		return decodeNMEA(topic, string(payload))
	}

	var s fleet.GPSSample
	if err := json.Unmarshal(payload, &s); err != nil {
		return fleet.GPSSample{}, fmt.Errorf("decode json sample: %w", err)
	}
	if strings.TrimSpace(s.BusID) == "" {
		s.BusID = BusFromTopic(topic)
	}
	return s, nil
}

func decodeNMEA(topic, line string) (fleet.GPSSample, error) {
	sentence, err := nmea.Parse(line)
	if err != nil {
		return fleet.GPSSample{}, fmt.Errorf("parse nmea: %w", err)
	}
	lat, lng, err := Position(sentence)
	if err != nil {
		return fleet.GPSSample{}, err
	}
	return fleet.GPSSample{BusID: BusFromTopic(topic), Lat: &lat, Lng: &lng}, nil
}

// Position extracts a fix from RMC or GGA sentences.
func Position(sentence nmea.Sentence) (lat, lng float64, err error) {
	switch sentence.DataType() {
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		if m.Validity != nmea.ValidRMC {
			return 0, 0, errNoFix
		}
		return m.Latitude, m.Longitude, nil
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		if m.FixQuality == nmea.Invalid {
			return 0, 0, errNoFix
		}
		return m.Latitude, m.Longitude, nil
	default:
		return 0, 0, fmt.Errorf("unsupported nmea sentence %s", sentence.DataType())
	}
}
