package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Notifier delivers a message to a chat.
type Notifier interface {
	Send(chatID, text string) error
}

// Sweeper periodically discards suspended runs nobody answered in time and
// tells their chat.
type Sweeper struct {
	manager    *Manager
	staleAfter time.Duration
	interval   time.Duration
	notify     Notifier
}

func NewSweeper(m *Manager, staleAfter, interval time.Duration, notify Notifier) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{manager: m, staleAfter: staleAfter, interval: interval, notify: notify}
}

// Start sweeps on every tick until ctx is done. A zero stale age disables it.
func (s *Sweeper) Start(ctx context.Context) {
	if s.staleAfter <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.manager.log.Info("run sweeper started",
		zap.Duration("stale_after", s.staleAfter), zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.manager.log.Error("sweeping stale runs", zap.Error(err))
			}
		}
	}
}

// Sweep discards every run suspended since before the stale age and returns
// how many it discarded.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.manager.now().Add(-s.staleAfter)
	ids, err := s.manager.runs.ListStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, id := range ids {
		rec, err := s.manager.Discard(ctx, id, cutoff)
		if err != nil {
			s.manager.log.Warn("failed to discard run", zap.String("run_id", id), zap.Error(err))
			continue
		}
		if rec == nil {
			continue
		}
		n++

		if s.notify == nil || rec.ChatID == "" {
			continue
		}
		msg := fmt.Sprintf("Your request %q waited %s without a reply and was dropped. Send it again to start over.",
			rec.Run.Request, s.staleAfter)
		if err := s.notify.Send(rec.ChatID, msg); err != nil {
			s.manager.log.Warn("failed to notify chat",
				zap.String("run_id", id), zap.String("chat_id", rec.ChatID), zap.Error(err))
		}
	}
	return n, nil
}
