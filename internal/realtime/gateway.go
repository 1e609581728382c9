package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/jwalitptl/triage-api/internal/config"
	"github.com/jwalitptl/triage-api/internal/event"
	"github.com/jwalitptl/triage-api/internal/model"
	apperrors "github.com/jwalitptl/triage-api/pkg/errors"
	"github.com/jwalitptl/triage-api/pkg/logger"
	"github.com/jwalitptl/triage-api/pkg/metrics"
	"github.com/jwalitptl/triage-api/pkg/result"
)

const ObserverName = "realtime_gateway"

// CaseAcceptor is the use case behind ACCEPT_CASE.
type CaseAcceptor interface {
	AcceptCase(ctx context.Context, patientID, doctorID string) result.Result[*model.Patient]
}

// Gateway translates domain events into wire messages and serves the
// WebSocket endpoint.
type Gateway struct {
	hub      *Hub
	cases    CaseAcceptor
	cfg      config.RealtimeConfig
	validate *validator.Validate
	upgrader websocket.Upgrader
	relay    *Relay
	now      func() time.Time
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

var _ event.Observer = (*Gateway)(nil)

func NewGateway(cfg config.RealtimeConfig, cases CaseAcceptor, log *logger.Logger, m *metrics.Metrics) *Gateway {
	cfg = withDefaults(cfg)
	g := &Gateway{
		hub:      NewHub(log, m),
		cases:    cases,
		cfg:      cfg,
		validate: validator.New(),
		now:      time.Now,
		logger:   log.With("component", "realtime_gateway"),
		metrics:  m,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return g
}

func withDefaults(cfg config.RealtimeConfig) config.RealtimeConfig {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	return cfg
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(o)] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}

func (g *Gateway) Hub() *Hub { return g.hub }

// UseRelay fans locally produced broadcasts out to other instances.
func (g *Gateway) UseRelay(r *Relay) { g.relay = r }

// ServeWS upgrades the request and starts the connection pumps. staffID,
// when known from authentication, binds the connection to a staff member.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request, staffID string) error {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}
	g.Attach(ws, staffID)
	return nil
}

// Attach registers an established connection and returns its client.
func (g *Gateway) Attach(conn Conn, staffID string) *Client {
	c := newClient(conn, staffID, g.cfg)
	g.hub.Register(c)
	g.logger.Debug("client connected", "client_id", c.id, "staff_id", staffID)

	go c.writePump(g.cfg)
	go c.readPump(g.cfg, g.handle, g.detach)
	return c
}

func (g *Gateway) detach(c *Client) {
	g.hub.Unregister(c)
	g.logger.Debug("client disconnected", "client_id", c.id)
}

// Close disconnects every client.
func (g *Gateway) Close() { g.hub.Close() }

func (g *Gateway) Name() string { return ObserverName }

// Update routes a domain event to the connections that should see it.
func (g *Gateway) Update(ctx context.Context, evt model.DomainEvent) error {
	var (
		typ   MessageType
		route Route
	)
	switch e := evt.(type) {
	case model.PatientRegistered:
		typ, route = MsgPatientRegistered, Route{All: true}
	case model.PatientPriorityChanged:
		typ, route = MsgPatientPriorityChanged, Route{All: true}
	case model.PatientStatusChanged:
		typ, route = MsgPatientStatusChanged, Route{All: true}
	case model.CaseReassigned:
		typ, route = MsgCaseReassigned, Route{All: true}
	case model.CriticalVitalsDetected:
		typ, route = MsgCriticalVitals, Route{Rooms: []string{RoomEmergencyStaff}}
		if e.AssignedDoctorID != "" {
			route.Rooms = append(route.Rooms, StaffRoom(e.AssignedDoctorID))
		}
	case model.CaseAssigned:
		typ, route = MsgCaseAcceptedByOther, Route{All: true, ExceptStaff: e.DoctorID}
	default:
		return nil
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s: %w", evt.EventType(), err)
	}
	g.broadcast(typ, payload, route)

	if g.relay != nil {
		if err := g.relay.Forward(ctx, typ, payload, route); err != nil {
			g.logger.Warn("relay forward failed", "type", string(typ), "error", err.Error())
		}
	}
	return nil
}

// broadcast stamps and sends a message produced by this or another instance.
func (g *Gateway) broadcast(typ MessageType, payload json.RawMessage, route Route) {
	n, err := g.hub.Broadcast(route, g.encoder(typ, payload))
	if err != nil {
		g.logger.Error(err, "encode outbound message", "type", string(typ))
		return
	}
	g.metrics.GatewayMessages.WithLabelValues("out", string(typ)).Add(float64(n))
}

func (g *Gateway) reply(c *Client, typ MessageType, data interface{}) {
	sent, err := g.hub.Send(c, g.encoder(typ, data))
	if err != nil {
		g.logger.Error(err, "encode reply", "type", string(typ))
		return
	}
	if sent {
		g.metrics.GatewayMessages.WithLabelValues("out", string(typ)).Inc()
	}
}

func (g *Gateway) replyError(c *Client, code, message string) {
	g.reply(c, MsgError, ErrorPayload{Code: code, Message: message})
}

func (g *Gateway) encoder(typ MessageType, data interface{}) Encoder {
	return func(seq uint64) ([]byte, error) {
		return json.Marshal(Outbound{
			Type:      typ,
			Seq:       seq,
			Timestamp: g.now().UTC(),
			Data:      data,
		})
	}
}

// handle processes one inbound frame on the client's read goroutine.
func (g *Gateway) handle(c *Client, data []byte) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		g.metrics.GatewayMessages.WithLabelValues("in", "malformed").Inc()
		g.replyError(c, CodeInvalidData, "message is not valid JSON")
		return
	}
	g.metrics.GatewayMessages.WithLabelValues("in", inboundLabel(in.Type)).Inc()

	if !c.limiter.Allow() {
		g.replyError(c, CodeRateLimited, "too many messages")
		return
	}

	switch in.Type {
	case MsgPing:
		g.reply(c, MsgPong, nil)
	case MsgJoinRoom:
		var req RoomRequest
		if !g.decode(c, in.Data, &req) {
			return
		}
		if g.hub.Join(c, req.Room) {
			g.reply(c, MsgRoomJoined, RoomPayload{Room: req.Room})
		}
	case MsgLeaveRoom:
		var req RoomRequest
		if !g.decode(c, in.Data, &req) {
			return
		}
		g.hub.Leave(c, req.Room)
		g.reply(c, MsgRoomLeft, RoomPayload{Room: req.Room})
	case MsgAcceptCase:
		var req AcceptCaseRequest
		if !g.decode(c, in.Data, &req) {
			return
		}
		g.acceptCase(c, req)
	default:
		g.replyError(c, CodeInvalidData, fmt.Sprintf("unknown message type %q", in.Type))
	}
}

func (g *Gateway) decode(c *Client, raw json.RawMessage, dst interface{}) bool {
	if len(raw) == 0 {
		g.replyError(c, CodeInvalidData, "missing data")
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		g.replyError(c, CodeInvalidData, "malformed data")
		return false
	}
	if err := g.validate.Struct(dst); err != nil {
		g.replyError(c, CodeInvalidData, err.Error())
		return false
	}
	return true
}

func (g *Gateway) acceptCase(c *Client, req AcceptCaseRequest) {
	switch bound := g.hub.StaffOf(c); bound {
	case "":
		// bind first so the resulting CASE_ACCEPTED_BY_OTHER skips this connection
		g.hub.Bind(c, req.StaffID)
	case req.StaffID:
	default:
		g.replyError(c, CodeInvalidData, "staffId does not match the connection")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.WriteWait)
	defer cancel()

	p, err := g.cases.AcceptCase(ctx, req.TriageID, req.StaffID).Unpack()
	if err != nil {
		code := CodeAcceptCaseFailed
		var assigned *model.CaseAlreadyAssignedError
		switch {
		case errors.As(err, &assigned):
			code = CodeAlreadyAssigned
		case apperrors.CodeOf(err) == apperrors.ErrNotFound:
			code = CodeNotFound
		}
		g.replyError(c, code, err.Error())
		return
	}

	g.reply(c, MsgCaseAccepted, p.Snapshot())
}

func inboundLabel(t MessageType) string {
	switch t {
	case MsgPing, MsgJoinRoom, MsgLeaveRoom, MsgAcceptCase:
		return string(t)
	}
	return "unknown"
}
