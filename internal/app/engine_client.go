package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/VideoRooms/internal/core"
	"github.com/dkeye/VideoRooms/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// EngineClient holds the process-wide connection to the media engine.
// The first Connect dials; callers arriving meanwhile wait for that dial.
// A failed dial is not remembered, the next Connect tries again.
type EngineClient struct {
	dialer core.EngineDialer

	group  singleflight.Group
	mu     sync.RWMutex
	engine core.MediaEngine
}

func NewEngineClient(dialer core.EngineDialer) *EngineClient {
	return &EngineClient{dialer: dialer}
}

func (c *EngineClient) Connect(ctx context.Context) (core.MediaEngine, error) {
	c.mu.RLock()
	engine := c.engine
	c.mu.RUnlock()
	if engine != nil {
		return engine, nil
	}

	// The dial outlives any single caller's cancellation since others may share it.
	ch := c.group.DoChan("connect", func() (any, error) {
		c.mu.RLock()
		engine := c.engine
		c.mu.RUnlock()
		if engine != nil {
			return engine, nil
		}
		engine, err := c.dialer.Dial(context.WithoutCancel(ctx))
		if err != nil {
			log.Error().Err(err).Str("module", "app.engine").Msg("media engine dial failed")
			return nil, err
		}
		c.mu.Lock()
		c.engine = engine
		c.mu.Unlock()
		log.Info().Str("module", "app.engine").Msg("media engine connected")
		return engine, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrEngineUnavailable, res.Err)
		}
		return res.Val.(core.MediaEngine), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", domain.ErrEngineUnavailable, ctx.Err())
	}
}

func (c *EngineClient) Close() error {
	c.mu.Lock()
	engine := c.engine
	c.engine = nil
	c.mu.Unlock()
	if engine == nil {
		return nil
	}
	return engine.Close()
}
