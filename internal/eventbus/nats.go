package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Publisher sends events to whoever is listening. Implementations must be
// safe for concurrent use.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(string, []byte) error { return nil }

// NATSPublisher publishes events on a NATS connection
type NATSPublisher struct {
	conn *nats.Conn
}

// Connect dials NATS with a bounded timeout and reconnect budget
func Connect(url string, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("agentproxy"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from NATS", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected to NATS", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

// Publish sends data on subject
func (p *NATSPublisher) Publish(subject string, data []byte) error {
	if p.conn == nil || p.conn.IsClosed() {
		return nats.ErrConnectionClosed
	}
	return p.conn.Publish(subject, data)
}

// Close drains pending messages and closes the connection
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}

// Emitter namespaces events under agents.<agent>.<kind> and encodes them
// as JSON. Publishing is best effort: failures are logged, never returned.
type Emitter struct {
	agent  string
	pub    Publisher
	logger *zap.Logger
}

// NewEmitter creates an emitter for one agent. A nil publisher drops events.
func NewEmitter(agent string, pub Publisher, logger *zap.Logger) *Emitter {
	if pub == nil {
		pub = Nop{}
	}
	return &Emitter{agent: agent, pub: pub, logger: logger}
}

// Subject returns the subject used for an event kind
func (e *Emitter) Subject(kind string) string {
	return fmt.Sprintf("agents.%s.%s", e.agent, kind)
}

// Emit publishes v as JSON under the given kind
func (e *Emitter) Emit(kind string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		e.logger.Error("failed to encode event", zap.String("kind", kind), zap.Error(err))
		return
	}
	if err := e.pub.Publish(e.Subject(kind), payload); err != nil {
		e.logger.Warn("failed to publish event", zap.String("subject", e.Subject(kind)), zap.Error(err))
	}
}
