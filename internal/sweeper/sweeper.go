package sweeper

import (
	"context"
	"log/slog"
	"time"

	"groupchat-service/internal/filestore"
	"groupchat-service/internal/models"
	"groupchat-service/internal/observability"
)

// Store removes expired messages in one atomic step.
type Store interface {
	SweepExpired(ctx context.Context, now time.Time) ([]models.ExpiredMessage, error)
}

// Announcer sends a process-wide event.
type Announcer interface {
	BroadcastAll(event string, data interface{}) int
}

// Sweeper periodically deletes expired messages and their attachments.
type Sweeper struct {
	store     Store
	files     filestore.Store
	announcer Announcer
	period    time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func New(store Store, files filestore.Store, announcer Announcer, period time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:     store,
		files:     files,
		announcer: announcer,
		period:    period,
		logger:    logger,
		now:       time.Now,
	}
}

// Run sweeps once immediately and then every period until ctx is done.
// A failed tick is logged and the schedule continues.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("expiry sweeper started", "period", s.period)
	s.Tick(ctx)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs a single sweep and returns how many messages it removed.
func (s *Sweeper) Tick(ctx context.Context) (int, error) {
	now := s.now().UTC()
	removed, err := s.store.SweepExpired(ctx, now)
	observability.ObserveSweep(len(removed), err)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
		return 0, err
	}

	for _, msg := range removed {
		if msg.ImageURL == "" {
			continue
		}
		if _, err := s.files.Delete(ctx, msg.ImageURL, models.ImageCategory(msg.GroupID)); err != nil {
			s.logger.Warn("expired image delete failed", "message_id", msg.ID, "image", msg.ImageURL, "error", err)
		}
	}

	if len(removed) > 0 {
		s.announcer.BroadcastAll(models.EventCleanupComplete, models.CleanupPayload{
			DeletedCount: len(removed),
			Timestamp:    models.FormatTime(now),
		})
		s.logger.Info("expired messages removed", "count", len(removed))
	}
	return len(removed), nil
}
