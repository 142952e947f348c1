package msg

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Topic partitions the message stream.
type Topic int

const (
	// Status carries orchestrator lifecycle notices.
	Status Topic = iota
	// Result carries completed simulation results.
	Result
	// Config carries configuration snapshots.
	Config
)

// Publisher is an interface for objects that allow subscription to their
// message stream by topic.
type Publisher interface {
	Subscribe(uuid.UUID, Topic) (<-chan Msg, error)
	Unsubscribe(uuid.UUID)
}

// Msg is a message envelope.
type Msg struct {
	sender  uuid.UUID
	topic   Topic
	payload interface{}
}

// New is the Msg factory function.
func New(sender uuid.UUID, topic Topic, payload interface{}) Msg {
	return Msg{sender, topic, payload}
}

// PID returns the sender's PID.
func (m Msg) PID() uuid.UUID { return m.sender }

// Topic returns the message topic.
func (m Msg) Topic() Topic { return m.topic }

// Payload returns the message data.
func (m Msg) Payload() interface{} { return m.payload }

// PubSub fans messages out to per-topic subscribers. Slow subscribers drop
// messages rather than block the publisher.
type PubSub struct {
	mux  *sync.Mutex
	pid  uuid.UUID
	subs map[Topic]map[uuid.UUID]chan Msg
}

// NewPublisher returns a PubSub owned by pid.
func NewPublisher(pid uuid.UUID) *PubSub {
	return &PubSub{
		mux:  &sync.Mutex{},
		pid:  pid,
		subs: make(map[Topic]map[uuid.UUID]chan Msg),
	}
}

// PID returns the publisher's PID.
func (p *PubSub) PID() uuid.UUID { return p.pid }

// Subscribe returns a read-only channel of messages on topic.
func (p *PubSub) Subscribe(pid uuid.UUID, topic Topic) (<-chan Msg, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	if _, ok := p.subs[topic]; !ok {
		p.subs[topic] = make(map[uuid.UUID]chan Msg)
	}
	if _, dup := p.subs[topic][pid]; dup {
		return nil, fmt.Errorf("pid %v already subscribed to topic %v", pid, topic)
	}
	ch := make(chan Msg, 50)
	p.subs[topic][pid] = ch
	return ch, nil
}

// Unsubscribe closes and removes all channels held for pid.
func (p *PubSub) Unsubscribe(pid uuid.UUID) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, topicSubs := range p.subs {
		if ch, ok := topicSubs[pid]; ok {
			delete(topicSubs, pid)
			close(ch)
		}
	}
}

// Publish delivers payload to every subscriber of topic. Full subscriber
// buffers are skipped.
func (p *PubSub) Publish(topic Topic, payload interface{}) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, ch := range p.subs[topic] {
		select {
		case ch <- New(p.pid, topic, payload):
		default:
		}
	}
}

// StopProcess closes all subscriber channels.
func (p *PubSub) StopProcess() {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, topicSubs := range p.subs {
		for pid, ch := range topicSubs {
			delete(topicSubs, pid)
			close(ch)
		}
	}
}
