package mqtt

import (
	"fmt"
	"testing"
)

func minuteMsg(i int) bufferedMsg {
	return bufferedMsg{topic: Topic, payload: []byte(fmt.Sprintf("minute-%d", i))}
}

func TestRingBufferEmptyDrain(t *testing.T) {
	r := newRingBuffer(4)
	if got := r.drainAll(); got != nil {
		t.Errorf("drain of empty buffer: got %v, want nil", got)
	}
}

func TestRingBufferKeepsOrder(t *testing.T) {
	r := newRingBuffer(4)
	for i := 0; i < 3; i++ {
		r.push(minuteMsg(i))
	}
	if r.len() != 3 {
		t.Fatalf("len: got %d, want 3", r.len())
	}
	got := r.drainAll()
	for i, m := range got {
		if string(m.payload) != fmt.Sprintf("minute-%d", i) {
			t.Errorf("msg %d: got %s", i, m.payload)
		}
	}
	if r.len() != 0 {
		t.Errorf("len after drain: got %d, want 0", r.len())
	}
}

func TestRingBufferOverflowDropsOldest(t *testing.T) {
	r := newRingBuffer(3)
	for i := 0; i < 5; i++ {
		r.push(minuteMsg(i))
	}
	if r.dropped != 2 {
		t.Errorf("dropped: got %d, want 2", r.dropped)
	}
	got := r.drainAll()
	if len(got) != 3 {
		t.Fatalf("drained %d messages, want 3", len(got))
	}
	for i, m := range got {
		if want := fmt.Sprintf("minute-%d", i+2); string(m.payload) != want {
			t.Errorf("msg %d: got %s, want %s", i, m.payload, want)
		}
	}
	if r.dropped != 0 {
		t.Errorf("dropped after drain: got %d, want 0", r.dropped)
	}
}

func TestRingBufferReuseAfterDrain(t *testing.T) {
	r := newRingBuffer(2)
	for cycle := 0; cycle < 3; cycle++ {
		r.push(minuteMsg(cycle))
		r.push(minuteMsg(cycle + 10))
		got := r.drainAll()
		if len(got) != 2 || string(got[0].payload) != fmt.Sprintf("minute-%d", cycle) {
			t.Errorf("cycle %d: got %v", cycle, got)
		}
	}
}

func TestRingBufferPreservesFields(t *testing.T) {
	r := newRingBuffer(2)
	r.push(bufferedMsg{topic: TopicSystem, payload: []byte("x"), qos: 1, retained: true})
	m := r.drainAll()[0]
	if m.topic != TopicSystem || m.qos != 1 || !m.retained || string(m.payload) != "x" {
		t.Errorf("got %+v", m)
	}
}
