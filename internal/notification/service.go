package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/varoOP/shinkrolist/internal/domain"
	"github.com/varoOP/shinkrolist/internal/status"
)

// Service is a composite notification service that can send notifications
// through multiple channels
type Service struct {
	discord *DiscordService
}

// NewService creates a new notification service
func NewService(log zerolog.Logger, webhookURL string) domain.NotificationService {
	var discord *DiscordService
	if webhookURL != "" {
		discord = NewDiscordService(log, webhookURL)
	}

	return &Service{
		discord: discord,
	}
}

// SendCompleted sends completion notifications through all configured channels
func (s *Service) SendCompleted(ctx context.Context, rec domain.UserStatus) error {
	if s.discord != nil {
		if err := s.discord.SendCompleted(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// SendError sends error notifications through all configured channels
func (s *Service) SendError(ctx context.Context, err error) error {
	if s.discord != nil {
		if err := s.discord.SendError(ctx, err); err != nil {
			return err
		}
	}
	return nil
}

const sendTimeout = 15 * time.Second

// CompletionListener returns a settle listener that announces items moving
// into Completed. Sends run in the background and never delay the write.
func CompletionListener(log zerolog.Logger, n domain.NotificationService) func(context.Context, status.Settled) {
	log = log.With().Str("module", "notification").Logger()

	return func(ctx context.Context, s status.Settled) {
		if s.Record == nil || s.Record.Status != domain.Completed {
			return
		}
		if s.Previous != nil && s.Previous.Status == domain.Completed {
			return
		}

		rec := *s.Record
		go func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
			defer cancel()

			if err := n.SendCompleted(ctx, rec); err != nil {
				log.Error().Err(err).Int("anime", rec.ItemID).Msg("Failed to send completion notification")
			}
		}()
	}
}
