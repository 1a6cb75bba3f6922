// Package coretest provides an in-memory media engine for tests.
package coretest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/VideoRooms/internal/core"
	"github.com/dkeye/VideoRooms/internal/domain"
)

var ErrInjected = errors.New("injected failure")

// Dialer hands out one Engine and counts dials.
type Dialer struct {
	Engine *Engine
	// FailDials makes the next n dials fail.
	FailDials atomic.Int32
	// DialDelay stretches every dial so concurrent callers overlap.
	DialDelay time.Duration

	dials atomic.Int32
}

func NewDialer() *Dialer {
	return &Dialer{Engine: NewEngine()}
}

func (d *Dialer) Dial(ctx context.Context) (core.MediaEngine, error) {
	d.dials.Add(1)
	if d.DialDelay > 0 {
		select {
		case <-time.After(d.DialDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.FailDials.Load() > 0 {
		d.FailDials.Add(-1)
		return nil, ErrInjected
	}
	return d.Engine, nil
}

func (d *Dialer) Dials() int { return int(d.dials.Load()) }

// Engine records everything the coordinator asks of it.
type Engine struct {
	// PipelineDelay stretches pipeline creation so concurrent joins overlap.
	PipelineDelay time.Duration
	// StreamDelay stretches stream creation so concurrent pair requests overlap.
	StreamDelay time.Duration
	// LocalCandidates are emitted by every stream on GatherCandidates.
	LocalCandidates []domain.Candidate

	FailPipelines atomic.Int32
	FailStreams   atomic.Int32
	FailOffers    atomic.Int32
	FailConnects  atomic.Int32

	mu        sync.Mutex
	seq       int
	pipelines []*Pipeline
	closed    bool
}

func NewEngine() *Engine { return &Engine{} }

func (e *Engine) CreatePipeline(ctx context.Context) (core.Pipeline, error) {
	if err := sleep(ctx, e.PipelineDelay); err != nil {
		return nil, err
	}
	if take(&e.FailPipelines) {
		return nil, ErrInjected
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	p := &Pipeline{engine: e, id: fmt.Sprintf("pipeline-%d", e.seq)}
	e.pipelines = append(e.pipelines, p)
	return p, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Pipelines returns every pipeline ever created, released or not.
func (e *Engine) Pipelines() []*Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Pipeline(nil), e.pipelines...)
}

func (e *Engine) nextID(prefix string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	return fmt.Sprintf("%s-%d", prefix, e.seq)
}

type Pipeline struct {
	engine *Engine
	id     string

	mu       sync.Mutex
	streams  []*Stream
	released bool
}

func (p *Pipeline) ID() string { return p.id }

func (p *Pipeline) CreateStream(ctx context.Context) (core.MediaStream, error) {
	if err := sleep(ctx, p.engine.StreamDelay); err != nil {
		return nil, err
	}
	if take(&p.engine.FailStreams) {
		return nil, ErrInjected
	}
	s := &Stream{pipeline: p, id: p.engine.nextID("stream")}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil, errors.New("pipeline released")
	}
	p.streams = append(p.streams, s)
	return s, nil
}

func (p *Pipeline) Release() error {
	p.mu.Lock()
	streams := append([]*Stream(nil), p.streams...)
	p.released = true
	p.mu.Unlock()
	for _, s := range streams {
		_ = s.Release()
	}
	return nil
}

func (p *Pipeline) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

func (p *Pipeline) Streams() []*Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Stream(nil), p.streams...)
}

type Stream struct {
	pipeline *Pipeline
	id       string

	mu         sync.Mutex
	candidates []domain.Candidate
	offers     []string
	sinks      map[string]bool
	onFound    func(domain.Candidate)
	gathered   int
	released   bool
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) ProcessOffer(_ context.Context, sdpOffer string) (string, error) {
	if take(&s.pipeline.engine.FailOffers) {
		return "", ErrInjected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers = append(s.offers, sdpOffer)
	return "answer-to:" + sdpOffer, nil
}

func (s *Stream) AddCandidate(c domain.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append(s.candidates, c)
	return nil
}

func (s *Stream) ConnectTo(_ context.Context, sink core.MediaStream) error {
	if take(&s.pipeline.engine.FailConnects) {
		return ErrInjected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sinks == nil {
		s.sinks = make(map[string]bool)
	}
	s.sinks[sink.ID()] = true
	return nil
}

func (s *Stream) GatherCandidates(context.Context) error {
	s.mu.Lock()
	s.gathered++
	fn := s.onFound
	s.mu.Unlock()
	if fn == nil {
		return nil
	}
	for _, c := range s.pipeline.engine.LocalCandidates {
		fn(c)
	}
	return nil
}

func (s *Stream) OnCandidateFound(fn func(domain.Candidate)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFound = fn
}

func (s *Stream) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	return nil
}

// Candidates returns the remote candidates applied so far, in order.
func (s *Stream) Candidates() []domain.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Candidate(nil), s.candidates...)
}

func (s *Stream) Offers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.offers...)
}

func (s *Stream) ConnectedTo(sink core.MediaStream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sinks[sink.ID()]
}

func (s *Stream) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func (s *Stream) Gathered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gathered
}

func take(n *atomic.Int32) bool {
	for {
		v := n.Load()
		if v <= 0 {
			return false
		}
		if n.CompareAndSwap(v, v-1) {
			return true
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Candidate builds a test candidate with a recognizable body.
func Candidate(body string) domain.Candidate {
	return domain.Candidate{Candidate: body}
}
