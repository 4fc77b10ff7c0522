package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// ClientName is the name reg2progress connections report to the NATS server.
const ClientName = "reg2progress"

// HeaderContentType is set on every published message.
const HeaderContentType = "Content-Type"

const closeFlushTimeout = 2 * time.Second

// NATSPublisher sends each event as a JSON message on the subject named by
// its topic.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to url. The connection keeps reconnecting in the
// background so a NATS restart does not take the server down; messages
// published while disconnected are buffered by the client.
func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	conn, err := connect(url, opts)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: conn}, nil
}

func connect(url string, extra []nats.Option) (*nats.Conn, error) {
	opts := append([]nats.Option{
		nats.Name(ClientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}, extra...)
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return conn, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", topic, err)
	}
	msg := nats.NewMsg(topic)
	msg.Header.Set(HeaderContentType, "application/json")
	msg.Data = data
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

// Close flushes buffered messages and closes the connection.
func (p *NATSPublisher) Close() error {
	err := p.conn.FlushTimeout(closeFlushTimeout)
	p.conn.Close()
	if err != nil {
		return fmt.Errorf("flushing events: %w", err)
	}
	return nil
}
