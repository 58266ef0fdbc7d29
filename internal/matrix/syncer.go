package matrix

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Syncable is the part of a Session the Syncer drives.
type Syncable interface {
	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)
}

// Handler receives timeline message events in server order. It is called
// from the syncer goroutine.
type Handler interface {
	HandleEvent(roomID string, ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(roomID string, ev Event)

func (f HandlerFunc) HandleEvent(roomID string, ev Event) { f(roomID, ev) }

// SyncerConfig tunes the long-poll loop.
type SyncerConfig struct {
	// Timeout is the server-side long-poll hold. Defaults to 30s.
	Timeout time.Duration
	// RetryBackoff is the first delay after a failure. Defaults to 2s.
	RetryBackoff time.Duration
	// MaxBackoff caps the doubling delay. Defaults to 1m.
	MaxBackoff time.Duration
	Logger     zerolog.Logger
	// OnSync, if set, is called after every sync request.
	OnSync func(err error)
}

// Syncer runs /sync forever and hands message events to a Handler.
type Syncer struct {
	session Syncable
	cfg     SyncerConfig
	logger  zerolog.Logger

	mu        sync.RWMutex
	nextBatch string
	prevBatch map[string]string
	ready     chan struct{}
	readyOnce sync.Once
}

// NewSyncer creates a syncer for the session.
func NewSyncer(session Syncable, cfg SyncerConfig) *Syncer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.MaxBackoff < cfg.RetryBackoff {
		cfg.MaxBackoff = cfg.RetryBackoff
	}
	return &Syncer{
		session:   session,
		cfg:       cfg,
		logger:    cfg.Logger,
		prevBatch: make(map[string]string),
		ready:     make(chan struct{}),
	}
}

// NextBatch returns the stream position after the latest successful sync.
func (s *Syncer) NextBatch() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextBatch
}

// PrevBatch returns the pagination token from the first sync that included
// the room: history older than anything the syncer delivered.
func (s *Syncer) PrevBatch(roomID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prevBatch[roomID]
}

// Ready is closed after the first successful sync.
func (s *Syncer) Ready() <-chan struct{} {
	return s.ready
}

// Run syncs until ctx is done or the access token is rejected. Transient
// failures are retried with exponential backoff.
func (s *Syncer) Run(ctx context.Context, handler Handler) error {
	backoff := s.cfg.RetryBackoff
	first := true
	for {
		opts := SyncOptions{Since: s.NextBatch()}
		if !first {
			opts.SetTimeout = true
			opts.Timeout = int(s.cfg.Timeout / time.Millisecond)
		}

		response, err := s.session.Sync(ctx, opts)
		if s.cfg.OnSync != nil && ctx.Err() == nil {
			s.cfg.OnSync(err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if IsError(err, ErrCodeUnknownToken) {
				return fmt.Errorf("matrix: access token rejected: %w", err)
			}
			s.logger.Warn().Err(err).Dur("backoff", backoff).Msg("sync failed, retrying")
			if err := sleepWithContext(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
			if backoff > s.cfg.MaxBackoff {
				backoff = s.cfg.MaxBackoff
			}
			continue
		}
		backoff = s.cfg.RetryBackoff

		s.apply(response, handler)
		if first {
			first = false
			s.readyOnce.Do(func() { close(s.ready) })
			s.logger.Info().Int("rooms", len(response.Rooms.Join)).Msg("initial sync complete")
		}
	}
}

func (s *Syncer) apply(response *SyncResponse, handler Handler) {
	s.mu.Lock()
	s.nextBatch = response.NextBatch
	for roomID, joined := range response.Rooms.Join {
		if _, ok := s.prevBatch[roomID]; !ok {
			s.prevBatch[roomID] = joined.Timeline.PrevBatch
		}
	}
	s.mu.Unlock()

	for roomID, joined := range response.Rooms.Join {
		for _, ev := range joined.Timeline.Events {
			if ev.Type != EventTypeMessage || ev.StateKey != nil {
				continue
			}
			handler.HandleEvent(roomID, ev)
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
