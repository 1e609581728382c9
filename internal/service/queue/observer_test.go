package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/pkg/logger"
	"github.com/jwalitptl/triage-api/pkg/messaging"
	"github.com/jwalitptl/triage-api/pkg/messaging/redis"
	"github.com/jwalitptl/triage-api/pkg/metrics"
)

func TestChannelByUrgency(t *testing.T) {
	assert.Equal(t, "triage:queue:high", Channel(model.PriorityCritical))
	assert.Equal(t, "triage:queue:high", Channel(model.PriorityHigh))
	assert.Equal(t, "triage:queue:medium", Channel(model.PriorityModerate))
	assert.Equal(t, "triage:queue:low", Channel(model.PriorityLow))
	assert.Equal(t, "triage:queue:low", Channel(model.PriorityNonUrgent))
}

func TestObserverRoutesToQueueBand(t *testing.T) {
	mr := miniredis.RunT(t)
	broker, err := redis.NewRedisBroker(context.Background(), redis.Config{URL: "redis://" + mr.Addr()}, logger.Nop(), metrics.NewNop())
	require.NoError(t, err)
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	high, err := broker.Subscribe(ctx, "triage:queue:high")
	require.NoError(t, err)

	obs := NewObserver(broker)
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, obs.Update(ctx, model.PatientPriorityChanged{
		EventMeta:   model.EventMeta{ID: "e1", Type: model.EventPatientPriorityChanged, Timestamp: at, PatientID: "patient-1"},
		Name:        "Ana Souza",
		OldPriority: model.PriorityModerate,
		NewPriority: model.PriorityCritical,
	}))

	select {
	case raw := <-high:
		var msg struct {
			Type    string `json:"type"`
			Payload Entry  `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "PATIENT_PRIORITY_CHANGED", msg.Type)
		assert.Equal(t, "patient-1", msg.Payload.PatientID)
		assert.Equal(t, model.PriorityCritical, msg.Payload.Priority)
		assert.Equal(t, model.PriorityModerate, msg.Payload.Previous)
		assert.Equal(t, "P1 - CRITICAL", msg.Payload.Label)
	case <-time.After(2 * time.Second):
		t.Fatal("queue entry not published")
	}
}

type recordingBroker struct {
	channels []string
}

func (b *recordingBroker) Publish(_ context.Context, channel string, _ interface{}) error {
	b.channels = append(b.channels, channel)
	return nil
}

func (b *recordingBroker) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }
func (b *recordingBroker) Close() error { return nil }

var _ messaging.Broker = (*recordingBroker)(nil)

func TestObserverIgnoresOtherEvents(t *testing.T) {
	b := &recordingBroker{}
	obs := NewObserver(b)

	require.NoError(t, obs.Update(context.Background(), model.CaseAssigned{
		EventMeta: model.EventMeta{ID: "e1", Type: model.EventCaseAssigned, PatientID: "patient-1"},
	}))
	require.NoError(t, obs.Update(context.Background(), model.PatientRegistered{
		EventMeta: model.EventMeta{ID: "e2", Type: model.EventPatientRegistered, PatientID: "patient-2"},
		Priority:  model.PriorityLow,
	}))

	assert.Equal(t, []string{"triage:queue:low"}, b.channels)
}
