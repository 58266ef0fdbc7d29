package matrix

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type scriptedSync struct {
	mu        sync.Mutex
	responses []func() (*SyncResponse, error)
	calls     []SyncOptions
	done      chan struct{}
	doneOnce  sync.Once
}

func (s *scriptedSync) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	s.mu.Lock()
	s.calls = append(s.calls, options)
	if len(s.responses) == 0 {
		s.mu.Unlock()
		if s.done != nil {
			s.doneOnce.Do(func() { close(s.done) })
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	s.mu.Unlock()
	return next()
}

func ok(resp *SyncResponse) func() (*SyncResponse, error) {
	return func() (*SyncResponse, error) { return resp, nil }
}

func fail(err error) func() (*SyncResponse, error) {
	return func() (*SyncResponse, error) { return nil, err }
}

func message(id, body string) Event {
	return Event{EventID: id, Type: EventTypeMessage, Sender: "@a:local", OriginServerTS: 1000, Content: map[string]any{"body": body}}
}

func TestSyncerDeliversMessagesAndTracksTokens(t *testing.T) {
	stateKey := ""
	fake := &scriptedSync{
		done: make(chan struct{}),
		responses: []func() (*SyncResponse, error){
			ok(&SyncResponse{
				NextBatch: "s1",
				Rooms: RoomsSection{Join: map[string]JoinedRoom{
					"!r:local": {Timeline: TimelineSection{
						PrevBatch: "p0",
						Events: []Event{
							message("$1", "one"),
							{EventID: "$topic", Type: "m.room.topic", StateKey: &stateKey},
							message("$2", "two"),
						},
					}},
				}},
			}),
			ok(&SyncResponse{
				NextBatch: "s2",
				Rooms: RoomsSection{Join: map[string]JoinedRoom{
					"!r:local": {Timeline: TimelineSection{PrevBatch: "p1", Events: []Event{message("$3", "three")}}},
				}},
			}),
		},
	}

	var mu sync.Mutex
	var got []string
	syncer := NewSyncer(fake, SyncerConfig{Timeout: 5 * time.Second, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- syncer.Run(ctx, HandlerFunc(func(roomID string, ev Event) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, roomID+"/"+ev.EventID)
		}))
	}()

	<-fake.done
	<-syncer.Ready()
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	mu.Lock()
	require.Equal(t, []string{"!r:local/$1", "!r:local/$2", "!r:local/$3"}, got)
	mu.Unlock()
	require.Equal(t, "s2", syncer.NextBatch())
	require.Equal(t, "p0", syncer.PrevBatch("!r:local"))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Equal(t, "", fake.calls[0].Since)
	require.False(t, fake.calls[0].SetTimeout)
	require.Equal(t, "s1", fake.calls[1].Since)
	require.True(t, fake.calls[1].SetTimeout)
	require.Equal(t, 5000, fake.calls[1].Timeout)
}

func TestSyncerRetriesTransientErrors(t *testing.T) {
	fake := &scriptedSync{
		done: make(chan struct{}),
		responses: []func() (*SyncResponse, error){
			fail(errors.New("connection reset")),
			fail(&Error{Code: ErrCodeLimitExceeded, StatusCode: 429}),
			ok(&SyncResponse{NextBatch: "s1"}),
		},
	}
	var mu sync.Mutex
	results := map[bool]int{}
	syncer := NewSyncer(fake, SyncerConfig{
		RetryBackoff: time.Millisecond,
		MaxBackoff:   2 * time.Millisecond,
		Logger:       zerolog.Nop(),
		OnSync: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			results[err == nil]++
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- syncer.Run(ctx, HandlerFunc(func(string, Event) {})) }()

	<-fake.done
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	require.Equal(t, "s1", syncer.NextBatch())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, map[bool]int{false: 2, true: 1}, results)
}

func TestSyncerStopsOnUnknownToken(t *testing.T) {
	fake := &scriptedSync{
		responses: []func() (*SyncResponse, error){
			fail(&Error{Code: ErrCodeUnknownToken, StatusCode: 401, Message: "Invalid access token"}),
		},
	}
	syncer := NewSyncer(fake, SyncerConfig{Logger: zerolog.Nop()})

	err := syncer.Run(context.Background(), HandlerFunc(func(string, Event) {}))
	require.True(t, IsError(err, ErrCodeUnknownToken))
}

func TestSleepWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepWithContext(ctx, time.Hour), context.Canceled)
	require.NoError(t, sleepWithContext(context.Background(), time.Millisecond))
}
