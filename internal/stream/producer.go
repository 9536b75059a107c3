package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/flemzord/surveil/internal/agent"
)

// Default producer settings.
const (
	DefaultKeepAlive = 25 * time.Second
	DefaultOutBuffer = 16
	toolQueueSize    = 64
)

// errNoTerminal is reported when a run returns without a terminal event.
var errNoTerminal = errors.New("stream: run ended without a terminal event")

// ProducerConfig tunes a Producer.
type ProducerConfig struct {
	// KeepAlive is the idle interval after which a keep-alive event is
	// emitted. Defaults to DefaultKeepAlive.
	KeepAlive time.Duration

	// OutBuffer is the capacity of the output channel.
	OutBuffer int
}

// Producer runs one analysis on its own goroutine and pushes the mapped
// events onto a bounded channel. Loop events and tool events arrive on
// separate channels; every tool event the run sent before a loop event is
// translated before that loop event. The output ends with the first
// terminal event.
type Producer struct {
	mapper    *Mapper
	keepAlive time.Duration
	outBuffer int
}

// NewProducer returns a producer translating with m.
func NewProducer(m *Mapper, cfg ProducerConfig) *Producer {
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if cfg.OutBuffer <= 0 {
		cfg.OutBuffer = DefaultOutBuffer
	}
	return &Producer{mapper: m, keepAlive: cfg.KeepAlive, outBuffer: cfg.OutBuffer}
}

// sequenced is a loop event together with the number of tool events the
// run had sent before it.
type sequenced struct {
	event agent.Event
	tools int64
}

// Start launches run with sinks feeding the producer and returns the event
// channel. The channel is closed after the terminal event, or when ctx is
// done. Events emitted by run after the terminal event are discarded.
func (p *Producer) Start(ctx context.Context, run func(agent.Sinks)) <-chan Event {
	// The loop channel is unbuffered so a loop event is only received once
	// the run is blocked on it; no tool event sent after it can be pending.
	loopCh := make(chan sequenced)
	toolCh := make(chan agent.Event, toolQueueSize)
	stopped := make(chan struct{})
	out := make(chan Event, p.outBuffer)

	var toolsSent atomic.Int64
	sinks := agent.Sinks{
		Loop: func(e agent.Event) {
			select {
			case loopCh <- sequenced{event: e, tools: toolsSent.Load()}:
			case <-stopped:
			}
		},
		Tool: func(e agent.Event) {
			toolsSent.Add(1)
			select {
			case toolCh <- e:
			case <-stopped:
			}
		},
	}

	go func() {
		defer close(loopCh)
		run(sinks)
	}()

	go func() {
		defer close(out)
		defer close(stopped)
		p.translate(ctx, loopCh, toolCh, out)
	}()

	return out
}

func (p *Producer) translate(ctx context.Context, loopCh <-chan sequenced, toolCh <-chan agent.Event, out chan<- Event) {
	timer := time.NewTimer(p.keepAlive)
	defer timer.Stop()

	emit := func(ev Event) bool {
		select {
		case out <- ev:
		case <-ctx.Done():
			return false
		}
		timer.Reset(p.keepAlive)
		return true
	}

	var toolsSeen int64

	// translateOne reports whether translation should continue.
	translateOne := func(raw agent.Event) bool {
		ev := p.mapper.Map(raw)
		if ev == nil {
			return true
		}
		return emit(*ev) && !ev.Final
	}

	nextTool := func(raw agent.Event) bool {
		toolsSeen++
		return translateOne(raw)
	}

	for {
		select {
		case raw := <-toolCh:
			if !nextTool(raw) {
				return
			}
		case item, ok := <-loopCh:
			if !ok {
				// The run returned: flush what it left and report the
				// missing terminal event.
			drain:
				for {
					select {
					case raw := <-toolCh:
						if !nextTool(raw) {
							return
						}
					default:
						break drain
					}
				}
				translateOne(agent.Failed{Stage: "stream", Err: errNoTerminal})
				return
			}
			// Tool events sent before this loop event go first.
			for toolsSeen < item.tools {
				select {
				case raw := <-toolCh:
					if !nextTool(raw) {
						return
					}
				case <-ctx.Done():
					return
				}
			}
			if !translateOne(item.event) {
				return
			}
		case <-timer.C:
			if !emit(p.mapper.KeepAlive()) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
