package config

import "fmt"

// ValidateForRun checks that every enabled collaborator has its secret.
func ValidateForRun(cfg *Config) error {
	if cfg.Barriers.AIEnabled && cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY (BARRIER_AI_ENABLED is on)", ErrMissingSecret)
	}
	if cfg.Twilio.AccountSID != "" && cfg.Twilio.AuthToken == "" {
		return fmt.Errorf("%w: TWILIO_AUTH_TOKEN", ErrMissingSecret)
	}
	if cfg.SendGrid.APIKey != "" && cfg.SendGrid.FromEmail == "" {
		return fmt.Errorf("%w: SENDGRID_FROM_EMAIL", ErrMissingSecret)
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.WebhookSecret == "" {
		return fmt.Errorf("%w: TG_WEBHOOK_SECRET", ErrMissingSecret)
	}
	return nil
}
