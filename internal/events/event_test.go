package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	got []Event
	err error
}

func (r *recordingPublisher) Publish(_ context.Context, ev Event) error {
	r.got = append(r.got, ev)
	return r.err
}

func TestFanout_DeliversToAllSinks(t *testing.T) {
	a := &recordingPublisher{}
	b := &recordingPublisher{err: errors.New("broker down")}
	c := &recordingPublisher{}

	err := Fanout(a, b, c).Publish(context.Background(), Event{Type: SessionCreated, AggregateID: uuid.New()})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
	assert.Len(t, c.got, 1, "a failing sink must not stop later sinks")
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop().Publish(context.Background(), Event{Type: SessionStarted}))
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, SplitBrokers(" k1:9092, ,k2:9092 "))
	assert.Nil(t, SplitBrokers(""))
}

func TestMarshalEvent(t *testing.T) {
	id := uuid.New()
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	data, err := marshalEvent(Event{
		Type:        SessionCancelled,
		AggregateID: id,
		OccurredAt:  at,
		Payload:     map[string]any{"reason": "sick"},
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, SessionCancelled, decoded["type"])
	assert.Equal(t, id.String(), decoded["aggregate_id"])
	assert.Equal(t, "sick", decoded["payload"].(map[string]any)["reason"])
}
