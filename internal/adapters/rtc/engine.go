// Package rtc implements the media engine on top of pion/webrtc: a pipeline
// is a set of server-side peer connections and connecting two streams relays
// RTP from one into the other.
package rtc

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/VideoRooms/internal/app/sfu"
	"github.com/dkeye/VideoRooms/internal/core"
	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrEngineClosed     = errors.New("engine closed")
	ErrPipelineReleased = errors.New("pipeline released")
	ErrStreamReleased   = errors.New("stream released")
)

// Codecs every stream negotiates. Relayed RTP is written into sink tracks
// with the same capability, so both sides of a relay must agree.
var (
	videoCodec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	audioCodec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
)

type Config struct {
	ICEServers  []webrtc.ICEServer
	PLIInterval time.Duration
	UDPPortMin  uint16
	UDPPortMax  uint16
	LogLevel    zerolog.Level
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Dialer builds the pion API. Dialing does no network I/O.
type Dialer struct {
	Config Config
}

func NewDialer(cfg Config) *Dialer {
	return &Dialer{Config: cfg}
}

func (d *Dialer) Dial(context.Context) (core.MediaEngine, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{RTPCodecCapability: videoCodec, PayloadType: 96}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, errors.Wrap(err, "register video codec")
	}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{RTPCodecCapability: audioCodec, PayloadType: 111}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, errors.Wrap(err, "register audio codec")
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, errors.Wrap(err, "register default interceptors")
	}
	if d.Config.PLIInterval > 0 {
		pli, err := intervalpli.NewReceiverInterceptor(intervalpli.GeneratorInterval(d.Config.PLIInterval))
		if err != nil {
			return nil, errors.Wrap(err, "new interval pli")
		}
		i.Add(pli)
	}

	s := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory(d.Config.LogLevel)}
	if d.Config.UDPPortMin > 0 && d.Config.UDPPortMax >= d.Config.UDPPortMin {
		if err := s.SetEphemeralUDPPortRange(d.Config.UDPPortMin, d.Config.UDPPortMax); err != nil {
			return nil, errors.Wrap(err, "udp port range")
		}
	}

	pcConfig := DefaultWebRTCConfig()
	if len(d.Config.ICEServers) > 0 {
		pcConfig.ICEServers = d.Config.ICEServers
	}

	log.Info().Str("module", "webrtc").Int("ice_servers", len(pcConfig.ICEServers)).Msg("media engine initialized")
	return &Engine{
		api:       webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i), webrtc.WithSettingEngine(s)),
		pcConfig:  pcConfig,
		pipelines: make(map[string]*Pipeline),
	}, nil
}

type Engine struct {
	api      *webrtc.API
	pcConfig webrtc.Configuration

	mu        sync.Mutex
	pipelines map[string]*Pipeline
	closed    bool
}

func (e *Engine) CreatePipeline(context.Context) (core.Pipeline, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		id:        uuid.NewString(),
		engine:    e,
		relays:    sfu.NewRelayManager(),
		endpoints: make(map[string]*Endpoint),
		ctx:       ctx,
		cancel:    cancel,
	}
	e.pipelines[p.id] = p
	return p, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	pipelines := make([]*Pipeline, 0, len(e.pipelines))
	for _, p := range e.pipelines {
		pipelines = append(pipelines, p)
	}
	e.mu.Unlock()
	for _, p := range pipelines {
		_ = p.Release()
	}
	return nil
}

func (e *Engine) forget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pipelines, id)
}

// Pipeline owns the peer connections of one room and the relays between them.
type Pipeline struct {
	id     string
	engine *Engine
	relays *sfu.RelayManager
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	endpoints map[string]*Endpoint
	released  bool
}

func (p *Pipeline) ID() string { return p.id }

func (p *Pipeline) CreateStream(context.Context) (core.MediaStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil, ErrPipelineReleased
	}
	pc, err := p.engine.api.NewPeerConnection(p.engine.pcConfig)
	if err != nil {
		return nil, errors.Wrap(err, "new peer connection")
	}
	ep := newEndpoint(p, pc)
	p.endpoints[ep.id] = ep
	return ep, nil
}

func (p *Pipeline) Release() error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return nil
	}
	p.released = true
	endpoints := make([]*Endpoint, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		endpoints = append(endpoints, ep)
	}
	p.mu.Unlock()

	var firstErr error
	for _, ep := range endpoints {
		if err := ep.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.relays.StopAll()
	p.cancel()
	p.engine.forget(p.id)
	log.Info().Str("module", "webrtc").Str("pipeline", p.id).Int("streams", len(endpoints)).Msg("pipeline released")
	return firstErr
}

func (p *Pipeline) forget(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.endpoints, id)
}
