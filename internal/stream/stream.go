// Package stream publishes decisions to external consumers over OSC.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/hypebeast/go-osc/osc"

	"github.com/verte-zerg/oddball/internal/model"
)

// ErrClosed reports a Publish after Close.
var ErrClosed = errors.New("publisher is closed")

// DefaultBuffer is the number of decisions queued before Publish blocks.
const DefaultBuffer = 16

type sender interface {
	Send(packet osc.Packet) error
}

// OSC sends every decision as a "/class" message, a "/code" message and one
// "/<code>" message per stimulus score. Sending happens on its own goroutine.
type OSC struct {
	client sender
	logger *slog.Logger
	queue  chan model.Decision
	quit   chan struct{}
	done   chan struct{}

	mu     sync.RWMutex // held for reading while enqueueing
	closed bool
}

// NewOSC returns a publisher sending UDP packets to host:port.
func NewOSC(host string, port int, logger *slog.Logger) *OSC {
	return newOSC(osc.NewClient(host, port), DefaultBuffer, logger)
}

func newOSC(client sender, buffer int, logger *slog.Logger) *OSC {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	o := &OSC{
		client: client,
		logger: logger,
		queue:  make(chan model.Decision, buffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go o.run()
	return o
}

// Publish queues a copy of d. It blocks while the queue is full. A decision
// accepted with a nil error is sent before Close returns.
func (o *OSC) Publish(ctx context.Context, d model.Decision) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrClosed
	}
	d.Sequence = append([]int(nil), d.Sequence...)
	d.Scores = maps.Clone(d.Scores)
	select {
	case o.queue <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close waits for pending Publish calls, sends the queued decisions and
// stops the publisher.
func (o *OSC) Close() error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.quit)
	}
	o.mu.Unlock()
	<-o.done
	return nil
}

func (o *OSC) run() {
	defer close(o.done)
	for {
		select {
		case d := <-o.queue:
			o.send(d)
		case <-o.quit:
			for {
				select {
				case d := <-o.queue:
					o.send(d)
				default:
					return
				}
			}
		}
	}
}

func (o *OSC) send(d model.Decision) {
	for _, msg := range Messages(d) {
		if err := o.client.Send(msg); err != nil {
			o.logger.Warn("failed to send osc message", "osc.address", msg.Address, model.ErrorKey, err)
			return
		}
	}
	o.logger.Debug("decision sent", model.DecisionKey, d.Class)
}

// Messages renders d as OSC messages. Scores follow the sequence order.
func Messages(d model.Decision) []*osc.Message {
	class := osc.NewMessage("/class")
	class.Append(int32(d.Class))
	code := osc.NewMessage("/code")
	code.Append(int32(d.Code))
	out := []*osc.Message{class, code}
	for _, c := range d.Sequence {
		msg := osc.NewMessage(fmt.Sprintf("/%d", c))
		msg.Append(float32(d.Scores[c]))
		out = append(out, msg)
	}
	return out
}
