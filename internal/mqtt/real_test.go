package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/dcf77-receiver/internal/logic"
)

// doneToken is an already completed paho token.
type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type sentMsg struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

// fakeClient records publishes. Methods the publisher never calls are left to
// the embedded nil interface.
type fakeClient struct {
	paho.Client

	mu           sync.Mutex
	sent         []sentMsg
	publishErr   error
	onPublish    func(n int) // called with the number of messages sent so far
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	c.sent = append(c.sent, sentMsg{topic: topic, qos: qos, retained: retained, payload: string(payload.([]byte))})
	n := len(c.sent)
	hook := c.onPublish
	err := c.publishErr
	c.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return doneToken{err: err}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeClient) messages() []sentMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMsg(nil), c.sent...)
}

func newTestPublisher() (*RealPublisher, *fakeClient) {
	c := &fakeClient{}
	p := newRealPublisher()
	p.client = c
	return p, c
}

func systemEventName(t *testing.T, payload string) string {
	t.Helper()
	var sp SystemPayload
	if err := json.Unmarshal([]byte(payload), &sp); err != nil {
		t.Fatalf("invalid system payload %q: %v", payload, err)
	}
	return sp.System.Event
}

func TestRealPublisherBuffersWhileDisconnected(t *testing.T) {
	p, c := newTestPublisher()

	if err := p.Publish(validMinute()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err != nil {
		t.Fatalf("PublishSystem: %v", err)
	}

	if n := len(c.messages()); n != 0 {
		t.Errorf("expected nothing sent while disconnected, got %d", n)
	}
	if p.buf.len() != 2 {
		t.Errorf("buffered: got %d, want 2", p.buf.len())
	}
	if p.IsConnected() {
		t.Error("expected IsConnected=false before the first connect")
	}
}

func TestRealPublisherReplaysInOrderOnConnect(t *testing.T) {
	p, c := newTestPublisher()

	_ = p.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true})
	_ = p.Publish(validMinute())
	_ = p.PublishSystem(SystemEvent{Event: "HEARTBEAT"})

	p.onConnect(c)

	sent := c.messages()
	if len(sent) != 3 {
		t.Fatalf("expected 3 replayed messages, got %d", len(sent))
	}
	if sent[0].topic != TopicSystem || systemEventName(t, sent[0].payload) != "STARTUP" || !sent[0].retained || sent[0].qos != 1 {
		t.Errorf("first: got %+v", sent[0])
	}
	if sent[1].topic != Topic || sent[1].qos != 0 || sent[1].retained {
		t.Errorf("second: got %+v", sent[1])
	}
	if systemEventName(t, sent[2].payload) != "HEARTBEAT" {
		t.Errorf("third: got %+v", sent[2])
	}
	if !p.IsConnected() {
		t.Error("expected IsConnected=true after connect")
	}
	if p.buf.len() != 0 {
		t.Errorf("buffer not drained: %d left", p.buf.len())
	}
}

func TestRealPublisherFirstConnectIsNotReconnect(t *testing.T) {
	p, c := newTestPublisher()
	p.onConnect(c)

	for _, m := range c.messages() {
		if m.topic == TopicSystem && systemEventName(t, m.payload) == "RECONNECTED" {
			t.Fatal("RECONNECTED sent on the first connection")
		}
	}
}

func TestRealPublisherReconnected(t *testing.T) {
	p, c := newTestPublisher()
	p.onConnect(c)
	p.onConnectionLost(c, errors.New("EOF"))

	if p.IsConnected() {
		t.Fatal("expected IsConnected=false after connection lost")
	}
	_ = p.Publish(validMinute())
	if n := len(c.messages()); n != 0 {
		t.Fatalf("expected minute to be buffered, got %d sent", n)
	}

	p.onConnect(c)

	sent := c.messages()
	if len(sent) != 2 {
		t.Fatalf("expected replayed minute and RECONNECTED, got %d messages", len(sent))
	}
	if sent[0].topic != Topic {
		t.Errorf("expected the buffered minute first, got %+v", sent[0])
	}
	if sent[1].topic != TopicSystem || systemEventName(t, sent[1].payload) != "RECONNECTED" {
		t.Errorf("expected RECONNECTED second, got %+v", sent[1])
	}
}

func TestRealPublisherSendDuringReplayQueuesBehind(t *testing.T) {
	p, c := newTestPublisher()
	_ = p.PublishSystem(SystemEvent{Event: "STARTUP"})
	_ = p.PublishSystem(SystemEvent{Event: "HEARTBEAT"})

	// A publish arriving while the first buffered message is on the wire.
	c.onPublish = func(n int) {
		if n == 1 {
			if err := p.PublishSystem(SystemEvent{Event: "SHUTDOWN"}); err != nil {
				t.Errorf("PublishSystem during replay: %v", err)
			}
		}
	}
	p.onConnect(c)

	sent := c.messages()
	var got []string
	for _, m := range sent {
		got = append(got, systemEventName(t, m.payload))
	}
	if strings.Join(got, ",") != "STARTUP,HEARTBEAT,SHUTDOWN" {
		t.Errorf("order: got %v", got)
	}
}

func TestRealPublisherConnectionLostDuringReplay(t *testing.T) {
	p, c := newTestPublisher()
	_ = p.PublishSystem(SystemEvent{Event: "STARTUP"})

	c.onPublish = func(n int) {
		if n == 1 {
			p.onConnectionLost(c, errors.New("EOF"))
		}
	}
	p.onConnect(c)

	if p.IsConnected() {
		t.Error("a loss during replay must leave the publisher disconnected")
	}
	c.onPublish = nil
	_ = p.PublishSystem(SystemEvent{Event: "HEARTBEAT"})
	if p.buf.len() != 1 {
		t.Errorf("expected HEARTBEAT to be buffered, got %d", p.buf.len())
	}
}

func TestRealPublisherSendsDirectlyWhenConnected(t *testing.T) {
	p, c := newTestPublisher()
	p.onConnect(c)

	if err := p.Publish(validMinute()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if n := len(c.messages()); n != 1 {
		t.Fatalf("expected 1 message, got %d", n)
	}

	c.publishErr = errors.New("not authorized")
	if err := p.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err == nil {
		t.Error("expected broker error to be returned")
	}
}

func TestRealPublisherIgnoresBits(t *testing.T) {
	p, c := newTestPublisher()
	p.onConnect(c)

	bit := validMinute()
	bit.Type = logic.EventBit
	if err := p.Publish(bit); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if n := len(c.messages()); n != 0 {
		t.Errorf("expected bits not to be published, got %d", n)
	}
}

func TestRealPublisherClose(t *testing.T) {
	p, c := newTestPublisher()
	_ = p.PublishSystem(SystemEvent{Event: "HEARTBEAT"})

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !c.disconnected {
		t.Error("expected client to be disconnected")
	}
}
