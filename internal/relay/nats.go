package relay

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"groupchat-service/internal/config"
)

// Envelope is the frame exchanged between nodes. Room is empty for
// process-wide broadcasts.
type Envelope struct {
	Node    string          `json:"node"`
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

// Deliverer hands a remote frame to local connections.
type Deliverer interface {
	DeliverRemote(room string, payload []byte) int
}

type conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error)
	Close()
}

// NATSRelay fans broadcasts out to the other nodes of the cluster.
type NATSRelay struct {
	conn    conn
	subject string
	nodeID  string
	logger  *slog.Logger
}

// Connect dials NATS with reconnect settings from cfg.
func Connect(cfg config.NATSConfig, nodeID string, logger *slog.Logger) (*NATSRelay, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("groupchat-"+nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	return newNATSRelay(nc, cfg.Subject, nodeID, logger), nil
}

func newNATSRelay(c conn, subject, nodeID string, logger *slog.Logger) *NATSRelay {
	return &NATSRelay{conn: c, subject: subject, nodeID: nodeID, logger: logger}
}

// Publish implements ws.Relay. The nats client only buffers the frame, so
// callers may hold locks. Failures are logged; local delivery has already
// happened.
func (r *NATSRelay) Publish(room string, payload []byte) {
	data, err := json.Marshal(Envelope{Node: r.nodeID, Room: room, Payload: payload})
	if err != nil {
		r.logger.Error("relay encode failed", "room", room, "error", err)
		return
	}
	if err := r.conn.Publish(r.subject, data); err != nil {
		r.logger.Warn("relay publish failed", "room", room, "error", err)
	}
}

// Subscribe delivers frames from other nodes to d. Frames this node
// published itself are skipped.
func (r *NATSRelay) Subscribe(d Deliverer) error {
	_, err := r.conn.Subscribe(r.subject, func(msg *nats.Msg) {
		r.handle(d, msg.Data)
	})
	return err
}

func (r *NATSRelay) handle(d Deliverer, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.logger.Warn("relay decode failed", "error", err)
		return
	}
	if env.Node == r.nodeID || len(env.Payload) == 0 {
		return
	}
	d.DeliverRemote(env.Room, env.Payload)
}

func (r *NATSRelay) Close() {
	r.conn.Close()
}
