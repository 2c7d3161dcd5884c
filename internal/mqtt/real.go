package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/dcf77-receiver/internal/logic"
)

// bufferCapacity holds a little over two hours of minutes.
const bufferCapacity = 128

// ClientID returns a unique MQTT client id so that several receivers can share
// one broker.
func ClientID() string {
	return "dcf77-receiver-" + uuid.New().String()[:8]
}

// RealPublisher publishes to an actual MQTT broker. Messages published while the
// connection is down are kept in a ring buffer and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topic  string

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	everUp    bool
	lost      int // connection losses, to spot one during a replay
}

func newRealPublisher() *RealPublisher {
	return &RealPublisher{
		topic: Topic,
		buf:   newRingBuffer(bufferCapacity),
	}
}

// NewRealPublisher creates a publisher for the given broker. The broker does not
// have to be reachable yet: paho keeps retrying in the background.
func NewRealPublisher(broker string) (*RealPublisher, error) {
	p := newRealPublisher()

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(ClientID()).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, buffering until connected", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// onConnect replays the offline buffer before marking the connection up, so
// messages sent meanwhile queue behind the replay instead of overtaking it.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.everUp
	p.everUp = true
	lost := p.lost
	p.mu.Unlock()

	replayed := 0
	for {
		p.mu.Lock()
		pending := p.buf.drainAll()
		if len(pending) == 0 {
			p.connected = p.lost == lost
			p.mu.Unlock()
			break
		}
		p.mu.Unlock()

		for _, m := range pending {
			if err := publish(c, m); err != nil {
				log.Printf("mqtt: replay: %v", err)
			}
		}
		replayed += len(pending)
	}
	log.Printf("mqtt: connected, replayed %d buffered messages", replayed)

	if reconnect {
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
			log.Printf("mqtt: publish RECONNECTED: %v", err)
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.lost++
	p.mu.Unlock()
	log.Printf("mqtt: connection lost: %v", err)
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	m := bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained}
	p.mu.Lock()
	if !p.connected {
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return publish(p.client, m)
}

func publish(c paho.Client, m bufferedMsg) error {
	token := c.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

// Publish sends a decoded minute to the MQTT broker. Other event types are
// dropped: bits are only available on the live feed.
func (p *RealPublisher) Publish(event logic.Event) error {
	if event.Type != logic.EventMinute {
		return nil
	}
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(p.topic, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) so lifecycle events survive a flaky link
	return p.send(TopicSystem, 1, event.Retained, payload)
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	if n := p.buf.len(); n > 0 {
		log.Printf("mqtt: closing with %d unsent messages", n)
	}
	p.mu.Unlock()
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
