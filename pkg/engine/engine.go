// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package engine runs a parser over queued items on a single worker and hands
// each parsed result to a list of callbacks.
package engine

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrOutputUnavailable is returned by IndicateData when the queue is full.
var ErrOutputUnavailable = errors.New("engine: output unavailable")

// DefaultQueueSize is used when New is given a non-positive size.
const DefaultQueueSize = 64

// Parser turns a queued item into a result.
type Parser[In, Out any] interface {
	Parse(In) (Out, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc[In, Out any] func(In) (Out, error)

// Parse calls f(item).
func (f ParserFunc[In, Out]) Parse(item In) (Out, error) {
	return f(item)
}

// Callback receives every successfully parsed result.
type Callback[Out any] func(Out) error

// Stats is a snapshot of engine counters.
type Stats struct {
	NumIn        uint64
	NumParseOk   uint64
	NumParseFail uint64
	NumOutOk     uint64
	NumOutFail   uint64
}

// Engine is a bounded-queue worker pipeline.
type Engine[In, Out any] struct {
	parser    Parser[In, Out]
	callbacks []Callback[Out]
	queue     chan In

	numIn        atomic.Uint64
	numParseOk   atomic.Uint64
	numParseFail atomic.Uint64
	numOutOk     atomic.Uint64
	numOutFail   atomic.Uint64
}

// New creates an engine with the given parser, queue size and callbacks.
func New[In, Out any](parser Parser[In, Out], queueSize int, callbacks ...Callback[Out]) *Engine[In, Out] {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Engine[In, Out]{
		parser:    parser,
		callbacks: callbacks,
		queue:     make(chan In, queueSize),
	}
}

// IndicateData queues an item without blocking.
func (e *Engine[In, Out]) IndicateData(item In) error {
	select {
	case e.queue <- item:
		return nil
	default:
		return ErrOutputUnavailable
	}
}

// Run processes queued items until ctx is done.
func (e *Engine[In, Out]) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item := <-e.queue:
			e.process(item)
		}
	}
}

func (e *Engine[In, Out]) process(item In) {
	e.numIn.Add(1)

	out, err := e.parser.Parse(item)
	if err != nil {
		e.numParseFail.Add(1)
		return
	}
	e.numParseOk.Add(1)

	for _, cb := range e.callbacks {
		if err := cb(out); err != nil {
			e.numOutFail.Add(1)
		} else {
			e.numOutOk.Add(1)
		}
	}
}

// Stats returns the current counters.
func (e *Engine[In, Out]) Stats() Stats {
	return Stats{
		NumIn:        e.numIn.Load(),
		NumParseOk:   e.numParseOk.Load(),
		NumParseFail: e.numParseFail.Load(),
		NumOutOk:     e.numOutOk.Load(),
		NumOutFail:   e.numOutFail.Load(),
	}
}

// Pending returns the number of queued items.
func (e *Engine[In, Out]) Pending() int {
	return len(e.queue)
}
