package notify

import (
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/muesli/reflow/truncate"
	"github.com/rs/zerolog"
)

// DefaultInterval is the minimum gap between two desktop notifications for
// the same room.
const DefaultInterval = 30 * time.Second

const maxBodyWidth = 100

// Desktop sends OS notifications for unseen messages, at most one per room
// per interval.
type Desktop struct {
	interval time.Duration
	logger   zerolog.Logger
	send     func(title, body string) error
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

func NewDesktop(interval time.Duration, logger zerolog.Logger) *Desktop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Desktop{
		interval: interval,
		logger:   logger,
		send: func(title, body string) error {
			return beeep.Notify(title, body, "")
		},
		now:  time.Now,
		last: make(map[string]time.Time),
	}
}

// Message notifies about a message in roomID unless the room was notified
// recently. Reports whether a notification was sent.
func (d *Desktop) Message(roomID, title, body string) bool {
	now := d.now()
	d.mu.Lock()
	if last, ok := d.last[roomID]; ok && now.Sub(last) < d.interval {
		d.mu.Unlock()
		return false
	}
	d.last[roomID] = now
	d.mu.Unlock()

	body = truncate.StringWithTail(body, maxBodyWidth, "...")
	if err := d.send(title, body); err != nil {
		d.logger.Warn().Err(err).Str("room_id", roomID).Msg("desktop notification failed")
		return false
	}
	return true
}

// Reset forgets the rate limit for a room, e.g. after the user opened it.
func (d *Desktop) Reset(roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.last, roomID)
}
