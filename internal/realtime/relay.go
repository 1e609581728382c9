package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/triage-api/pkg/logger"
	"github.com/jwalitptl/triage-api/pkg/messaging"
)

// RelayChannel carries gateway broadcasts between instances.
const RelayChannel = "realtime:broadcast"

type relayEnvelope struct {
	Origin  string          `json:"origin"`
	Type    MessageType     `json:"type"`
	Route   Route           `json:"route"`
	Payload json.RawMessage `json:"payload"`
}

// Relay shares broadcasts with the gateways of other instances so a client
// sees events no matter which instance handled the request. Messages are
// re-stamped with the receiving instance's sequence.
type Relay struct {
	broker   messaging.Broker
	gateway  *Gateway
	instance string
	logger   *logger.Logger
}

func NewRelay(broker messaging.Broker, gateway *Gateway, log *logger.Logger) *Relay {
	r := &Relay{
		broker:   broker,
		gateway:  gateway,
		instance: uuid.NewString(),
		logger:   log.With("component", "realtime_relay"),
	}
	gateway.UseRelay(r)
	return r
}

func (r *Relay) Forward(ctx context.Context, typ MessageType, payload json.RawMessage, route Route) error {
	return r.broker.Publish(ctx, RelayChannel, relayEnvelope{
		Origin:  r.instance,
		Type:    typ,
		Route:   route,
		Payload: payload,
	})
}

// Run delivers broadcasts from other instances until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	msgs, err := r.broker.Subscribe(ctx, RelayChannel)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", RelayChannel, err)
	}
	for raw := range msgs {
		var env relayEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			r.logger.Warn("discarding malformed relay message", "error", err.Error())
			continue
		}
		if env.Origin == r.instance {
			continue
		}
		r.gateway.broadcast(env.Type, env.Payload, env.Route)
	}
	return ctx.Err()
}
