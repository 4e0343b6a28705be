// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package report

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Thermoquad/solenoid/pkg/logger"
)

// QueueSize bounds the events waiting to be published.
const QueueSize = 256

// Publisher sends one MQTT message.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Close() error
}

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// MQTTReporter publishes switch events to <prefix>/<number> (or
// <prefix>/local/<number>) and lifecycle messages to <prefix>/system. Report never
// blocks: publishing happens on a separate goroutine and events are dropped when
// the queue is full.
type MQTTReporter struct {
	pub     Publisher
	prefix  string
	session string
	log     logger.Logger
	now     func() time.Time

	queue chan message
	wg    sync.WaitGroup

	mu      sync.Mutex
	dropped uint64
	closed  bool
}

// NewMQTTReporter starts the publishing goroutine. An empty session gets a fresh id.
func NewMQTTReporter(pub Publisher, prefix, session string, log logger.Logger) *MQTTReporter {
	if session == "" {
		session = uuid.NewString()
	}
	r := &MQTTReporter{
		pub:     pub,
		prefix:  prefix,
		session: session,
		log:     log,
		now:     time.Now,
		queue:   make(chan message, QueueSize),
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

// Session identifies this run in every payload.
func (r *MQTTReporter) Session() string { return r.session }

// SystemTopic is where lifecycle messages go.
func (r *MQTTReporter) SystemTopic() string { return r.prefix + "/system" }

// Topic returns the topic for a switch.
func (r *MQTTReporter) Topic(switchID int, isLocal bool) string {
	if isLocal {
		return r.prefix + "/local/" + strconv.Itoa(switchID)
	}
	return r.prefix + "/" + strconv.Itoa(switchID)
}

func (r *MQTTReporter) Report(switchID int, state bool, isLocal bool) {
	payload, err := FormatEvent(Event{
		Switch:    switchID,
		State:     StateName(state),
		Local:     isLocal,
		Timestamp: r.now(),
		Session:   r.session,
	})
	if err != nil {
		r.log.Errorf("format switch event: %v", err)
		return
	}
	r.enqueue(message{topic: r.Topic(switchID, isLocal), payload: payload})
}

// System queues a retained lifecycle message.
func (r *MQTTReporter) System(event, reason string) {
	payload, err := FormatSystemEvent(SystemEvent{
		Event:     event,
		Session:   r.session,
		Timestamp: r.now(),
		Reason:    reason,
	})
	if err != nil {
		r.log.Errorf("format system event: %v", err)
		return
	}
	r.enqueue(message{topic: r.SystemTopic(), qos: 1, retained: true, payload: payload})
}

func (r *MQTTReporter) enqueue(m message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- m:
	default:
		r.dropped++
		if r.dropped == 1 {
			r.log.Warnf("mqtt: queue full (%d messages), dropping events", QueueSize)
		}
	}
}

// Dropped is the number of events lost to a full queue.
func (r *MQTTReporter) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *MQTTReporter) loop() {
	defer r.wg.Done()
	for m := range r.queue {
		if err := r.pub.Publish(m.topic, m.qos, m.retained, m.payload); err != nil {
			r.log.Debugf("mqtt publish %s: %v", m.topic, err)
		}
	}
}

// Close flushes queued messages and closes the publisher.
func (r *MQTTReporter) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
	if err := r.pub.Close(); err != nil {
		return fmt.Errorf("close mqtt publisher: %w", err)
	}
	return nil
}
