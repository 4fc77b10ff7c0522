package events

import (
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
)

// subscriberBuffer is how many messages may queue per subscription before
// NATS starts dropping them as a slow consumer.
const subscriberBuffer = 64

// Message is one event as received from the bus.
type Message struct {
	Topic string
	Data  []byte
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers messages whose topic matches pattern (NATS wildcards
	// allowed) until the returned cancel function is called, which also
	// closes the channel.
	Subscribe(pattern string) (<-chan Message, func(), error)
	Close() error
}

// NATSSubscriber receives events from NATS.
type NATSSubscriber struct {
	conn *nats.Conn
}

// NewNATSSubscriber connects to url with automatic reconnection. Extra
// options, such as disconnect handlers, are applied after the defaults.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	conn, err := connect(url, opts)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: conn}, nil
}

func (s *NATSSubscriber) Subscribe(pattern string) (<-chan Message, func(), error) {
	in := make(chan *nats.Msg, subscriberBuffer)
	sub, err := s.conn.ChanSubscribe(pattern, in)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", pattern, err)
	}
	// The subscription must reach the server before Subscribe returns, or
	// events published right after would be missed.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, nil, fmt.Errorf("flushing subscription to %s: %w", pattern, err)
	}

	out := make(chan Message)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case msg := <-in:
				select {
				case out <- Message{Topic: msg.Subject, Data: msg.Data}:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			close(done)
		})
	}
	return out, cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
