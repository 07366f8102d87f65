package publisher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"fleet-signage/internal/fleet"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "signage.bus.UK07-1234", BusSubject("signage", "UK07-1234"))
	assert.Equal(t, "signage.bus.UK07_2E1234", BusSubject("signage", "UK07.1234"))
	assert.Equal(t, "signage.bus.UK07_5F1234", BusSubject("signage", "UK07_1234"))
	assert.Equal(t, "signage.bus.bus_2012", BusSubject("signage", " bus 12 "))
	assert.Equal(t, "signage.bus.a_3Eb_2Ac", BusSubject("signage", "a>b*c"))
	assert.Equal(t, "signage.bus._", BusSubject("signage", ""))
	assert.Equal(t, "signage.all", GlobalSubject("signage"))
	assert.Equal(t, "_.all", GlobalSubject(">"))
}

type sink struct {
	got []fleet.LandmarkEvent
	err error
}

func (s *sink) PublishLandmark(_ context.Context, ev fleet.LandmarkEvent) error {
	s.got = append(s.got, ev)
	return s.err
}

func TestFanout(t *testing.T) {
	broken := &sink{err: errors.New("down")}
	ok := &sink{}
	f := Fanout{broken, nil, ok}

	ev := fleet.LandmarkEvent{Type: fleet.EventTypeLandmark, Name: "ISBT", BusID: "b1", Stage: fleet.StageReached}
	err := f.PublishLandmark(context.Background(), ev)

	assert.ErrorContains(t, err, "down")
	assert.Len(t, broken.got, 1)
	assert.Equal(t, []fleet.LandmarkEvent{ev}, ok.got)
	assert.NoError(t, Fanout{}.PublishLandmark(context.Background(), ev))
}
