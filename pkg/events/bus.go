package events

import (
	"context"
	"sync"
)

// AllTasks subscribes to every task
const AllTasks = ""

// Bus distributes progress to subscribers keyed by task id. A subscriber
// whose buffer is full loses its oldest pending observation.
type Bus struct {
	subscribers map[string]map[*Subscription]bool
	forwards    []Sink
	buffer      int
	mu          sync.RWMutex
	shutdown    chan struct{}
	shutdownMu  sync.Mutex
	isShutdown  bool
}

// Subscription is one consumer of the bus
type Subscription struct {
	topic     string
	channel   chan Progress
	bus       *Bus
	ctx       context.Context
	cancel    context.CancelFunc
	sendMu    sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// NewBus creates a bus whose subscriptions buffer up to buffer observations
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subscribers: make(map[string]map[*Subscription]bool),
		buffer:      buffer,
		shutdown:    make(chan struct{}),
	}
}

// Forward registers a sink that sees every observation, e.g. a Publisher
func (b *Bus) Forward(s Sink) {
	b.mu.Lock()
	b.forwards = append(b.forwards, s)
	b.mu.Unlock()
}

// Subscribe receives observations for taskID, or for every task with AllTasks.
// The subscription ends when ctx is done.
func (b *Bus) Subscribe(ctx context.Context, taskID string) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		topic:   taskID,
		channel: make(chan Progress, b.buffer),
		bus:     b,
		ctx:     subCtx,
		cancel:  cancel,
	}

	b.shutdownMu.Lock()
	if b.isShutdown {
		b.shutdownMu.Unlock()
		cancel()
		sub.close()
		return sub
	}
	b.mu.Lock()
	if b.subscribers[taskID] == nil {
		b.subscribers[taskID] = make(map[*Subscription]bool)
	}
	b.subscribers[taskID][sub] = true
	b.mu.Unlock()
	b.shutdownMu.Unlock()

	go func() {
		select {
		case <-subCtx.Done():
			sub.Unsubscribe()
		case <-b.shutdown:
			sub.close()
		}
	}()

	return sub
}

// Publish delivers p to matching subscribers and forwards. It never blocks.
func (b *Bus) Publish(p Progress) {
	b.shutdownMu.Lock()
	if b.isShutdown {
		b.shutdownMu.Unlock()
		return
	}
	b.shutdownMu.Unlock()

	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subscribers[p.TaskID])+len(b.subscribers[AllTasks]))
	for sub := range b.subscribers[p.TaskID] {
		subs = append(subs, sub)
	}
	if p.TaskID != AllTasks {
		for sub := range b.subscribers[AllTasks] {
			subs = append(subs, sub)
		}
	}
	forwards := b.forwards
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.offer(p)
	}
	for _, f := range forwards {
		f.Publish(p)
	}
}

// SubscriberCount returns the number of subscribers for a task
func (b *Bus) SubscriberCount(taskID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[taskID])
}

// Shutdown closes every subscription
func (b *Bus) Shutdown() {
	b.shutdownMu.Lock()
	if b.isShutdown {
		b.shutdownMu.Unlock()
		return
	}
	b.isShutdown = true
	b.shutdownMu.Unlock()

	close(b.shutdown)

	b.mu.Lock()
	for topic, subs := range b.subscribers {
		for sub := range subs {
			sub.close()
		}
		delete(b.subscribers, topic)
	}
	b.mu.Unlock()
}

// offer enqueues p, evicting the oldest pending observation when full
func (s *Subscription) offer(p Progress) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.channel <- p:
			return
		default:
		}
		select {
		case <-s.channel:
		default:
		}
	}
}

// Channel returns the subscription's channel, closed when it ends
func (s *Subscription) Channel() <-chan Progress {
	return s.channel
}

// Unsubscribe removes the subscription
func (s *Subscription) Unsubscribe() {
	s.cancel()

	s.bus.mu.Lock()
	if s.bus.subscribers[s.topic] != nil {
		delete(s.bus.subscribers[s.topic], s)
		if len(s.bus.subscribers[s.topic]) == 0 {
			delete(s.bus.subscribers, s.topic)
		}
	}
	s.bus.mu.Unlock()

	s.close()
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		s.sendMu.Lock()
		s.closed = true
		close(s.channel)
		s.sendMu.Unlock()
	})
}
