package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/shinkrolist/internal/domain"
)

// DiscordService implements NotificationService for Discord webhooks
type DiscordService struct {
	log        zerolog.Logger
	webhookURL string
	httpClient *http.Client
}

// NewDiscordService creates a new Discord notification service
func NewDiscordService(log zerolog.Logger, webhookURL string) *DiscordService {
	return &DiscordService{
		log:        log.With().Str("module", "notification").Str("type", "discord").Logger(),
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendCompleted announces that a user finished an item
func (s *DiscordService) SendCompleted(ctx context.Context, rec domain.UserStatus) error {
	if s.webhookURL == "" {
		return nil // No webhook configured, skip silently
	}

	fields := []discordField{
		{
			Name:   "Episodes",
			Value:  episodes(rec),
			Inline: true,
		},
	}
	if rec.Score > 0 {
		fields = append(fields, discordField{
			Name:   "Score",
			Value:  fmt.Sprintf("%d/%d", rec.Score, domain.MaxScore),
			Inline: true,
		})
	}
	if rec.Type != "" {
		fields = append(fields, discordField{
			Name:   "Type",
			Value:  rec.Type,
			Inline: true,
		})
	}

	embed := discordEmbed{
		Title:       fmt.Sprintf("Completed: %s", rec.Title),
		URL:         fmt.Sprintf("https://myanimelist.net/anime/%d", rec.ItemID),
		Description: fmt.Sprintf("Marked as %s", rec.Status.Label()),
		Color:       0x00ff00, // Green
		Timestamp:   rec.UpdatedAt.Format(time.RFC3339),
		Fields:      fields,
	}
	if rec.ImageURL != "" {
		embed.Thumbnail = &discordImage{URL: rec.ImageURL}
	}

	payload := discordWebhook{
		Embeds: []discordEmbed{embed},
	}

	return s.sendWebhook(ctx, payload)
}

func episodes(rec domain.UserStatus) string {
	if rec.EpisodesTotal > 0 {
		return fmt.Sprintf("%d/%d", rec.EpisodesWatched, rec.EpisodesTotal)
	}
	return fmt.Sprintf("%d", rec.EpisodesWatched)
}

// SendError sends an error notification with error details
func (s *DiscordService) SendError(ctx context.Context, err error) error {
	if s.webhookURL == "" {
		return nil // No webhook configured, skip silently
	}

	embed := discordEmbed{
		Title:       "Shinkrolist Error",
		Description: fmt.Sprintf("A status operation failed:\n```%s```", err.Error()),
		Color:       0xff0000, // Red
		Timestamp:   time.Now().Format(time.RFC3339),
	}

	payload := discordWebhook{
		Embeds: []discordEmbed{embed},
	}

	return s.sendWebhook(ctx, payload)
}

// sendWebhook sends a webhook payload to Discord
func (s *DiscordService) sendWebhook(ctx context.Context, payload discordWebhook) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return errors.Wrap(err, "failed to create webhook request")
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send webhook request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	}

	s.log.Debug().Msg("Discord notification sent successfully")
	return nil
}

// discordWebhook represents a Discord webhook payload
type discordWebhook struct {
	Embeds []discordEmbed `json:"embeds"`
}

// discordEmbed represents a Discord embed
type discordEmbed struct {
	Title       string         `json:"title"`
	URL         string         `json:"url,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Thumbnail   *discordImage  `json:"thumbnail,omitempty"`
	Fields      []discordField `json:"fields,omitempty"`
}

// discordImage represents a Discord embed image
type discordImage struct {
	URL string `json:"url"`
}

// discordField represents a Discord embed field
type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}
