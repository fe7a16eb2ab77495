// Package notify keeps the unread counter and notification feed consistent
// with the Gateway across a session, independent of the money flows.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glidepay/wallet-bot/internal/gateway"
)

// Gateway is the notification surface of the banking service.
type Gateway interface {
	Notifications(ctx context.Context, userID int64) ([]gateway.Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, notificationID int64) error
	MarkAllRead(ctx context.Context, userID int64) error
}

// Synchronizer mirrors the server-side notification state. Reads replace the
// local copy wholesale; mark-read acknowledgements are applied optimistically
// and sent fire-and-forget: a failed ack is logged, not rolled back, and the
// next poll bounds the staleness window.
type Synchronizer struct {
	gw       Gateway
	userID   int64
	log      *slog.Logger
	onUnread func(count int)

	mu     sync.Mutex
	ackCtx context.Context
	feed   []gateway.Notification
	unread int
}

// NewSynchronizer creates a synchronizer for the session's user. onUnread is
// invoked when a poll observes the unread count rising; it may be nil.
func NewSynchronizer(gw Gateway, userID int64, log *slog.Logger, onUnread func(count int)) *Synchronizer {
	if onUnread == nil {
		onUnread = func(int) {}
	}
	return &Synchronizer{
		gw:       gw,
		userID:   userID,
		log:      log,
		onUnread: onUnread,
		ackCtx:   context.Background(),
	}
}

// Start refreshes once, then polls the unread count until ctx is cancelled.
// Cancel the session context on logout so no timer outlives its session.
func (s *Synchronizer) Start(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	s.ackCtx = ctx
	s.mu.Unlock()

	if err := s.Refresh(ctx); err != nil {
		s.log.Warn("initial notification refresh", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// Refresh replaces the feed and counter with the Gateway's current state.
// Called on start and whenever the panel opens.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	feed, err := s.gw.Notifications(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("fetch notifications: %w", err)
	}
	count, err := s.gw.UnreadCount(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("fetch unread count: %w", err)
	}

	s.mu.Lock()
	s.feed = feed
	s.unread = clamp(count)
	s.mu.Unlock()
	return nil
}

// poll checks the unread counter and pulls the full feed when it moved, so
// counter and list stay consistent with each other.
func (s *Synchronizer) poll(ctx context.Context) {
	count, err := s.gw.UnreadCount(ctx, s.userID)
	if err != nil {
		s.log.Warn("poll unread count", "error", err)
		return
	}

	s.mu.Lock()
	previous := s.unread
	changed := count != previous
	s.mu.Unlock()

	if !changed {
		return
	}

	if err := s.Refresh(ctx); err != nil {
		s.log.Warn("refresh after count change", "error", err)
		return
	}
	if count > previous {
		s.onUnread(count)
	}
}

// Feed returns a copy of the current feed, newest first.
func (s *Synchronizer) Feed() []gateway.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gateway.Notification, len(s.feed))
	copy(out, s.feed)
	return out
}

// Unread returns the current unread counter.
func (s *Synchronizer) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// MarkRead flips one notification optimistically and acknowledges it in the
// background. Marking an already-read entry is a no-op, so the counter can
// never be driven below zero by a double tap.
func (s *Synchronizer) MarkRead(notificationID int64) {
	s.mu.Lock()
	flipped := false
	for i := range s.feed {
		if s.feed[i].ID == notificationID && !s.feed[i].Read {
			s.feed[i].Read = true
			flipped = true
			break
		}
	}
	if flipped {
		s.unread = clamp(s.unread - 1)
	}
	ctx := s.ackCtx
	s.mu.Unlock()

	if !flipped {
		return
	}

	go func() {
		if err := s.gw.MarkRead(ctx, notificationID); err != nil {
			s.log.Warn("mark notification read", "notification_id", notificationID, "error", err)
		}
	}()
}

// MarkAllRead zeroes the counter optimistically and issues one bulk ack.
func (s *Synchronizer) MarkAllRead() {
	s.mu.Lock()
	any := false
	for i := range s.feed {
		if !s.feed[i].Read {
			s.feed[i].Read = true
			any = true
		}
	}
	s.unread = 0
	ctx := s.ackCtx
	s.mu.Unlock()

	if !any {
		return
	}

	go func() {
		if err := s.gw.MarkAllRead(ctx, s.userID); err != nil {
			s.log.Warn("mark all notifications read", "error", err)
		}
	}()
}

func clamp(count int) int {
	if count < 0 {
		return 0
	}
	return count
}
