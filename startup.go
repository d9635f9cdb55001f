package main

import (
	"context"
	"fmt"
	"os"

	"musicseed-go/logcolors"
	"musicseed-go/services/gateway"
	"musicseed-go/services/gemini"
	"musicseed-go/services/notifier"
	"musicseed-go/services/openai"

	log "github.com/sirupsen/logrus"
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getNotifierTypeName(n notifier.Notifier) string {
	switch n.(type) {
	case *notifier.EmailNotifier:
		return "email"
	case *notifier.TelegramNotifier:
		return "telegram"
	case *notifier.NtfyNotifier:
		return "ntfy"
	case notifier.LogNotifier, *notifier.LogNotifier:
		return "log"
	default:
		return "unknown"
	}
}

// setupNotifiers builds the alert channels from the environment. With none
// configured, alerts go to the log.
func setupNotifiers() []notifier.Notifier {
	var notifiers []notifier.Notifier

	if smtpHost := os.Getenv("NOTIFIER_SMTP_HOST"); smtpHost != "" {
		emailNotifier := &notifier.EmailNotifier{
			SMTPHost:     smtpHost,
			SMTPPort:     getEnvOrDefault("NOTIFIER_SMTP_PORT", "587"),
			SMTPUsername: os.Getenv("NOTIFIER_SMTP_USERNAME"),
			SMTPPassword: os.Getenv("NOTIFIER_SMTP_PASSWORD"),
			FromEmail:    os.Getenv("NOTIFIER_FROM_EMAIL"),
			ToEmail:      os.Getenv("NOTIFIER_TO_EMAIL"),
		}
		notifiers = append(notifiers, emailNotifier)
	}

	if botToken := os.Getenv("NOTIFIER_TELEGRAM_BOT_TOKEN"); botToken != "" {
		telegramNotifier := &notifier.TelegramNotifier{
			BotToken: botToken,
			ChatID:   os.Getenv("NOTIFIER_TELEGRAM_CHAT_ID"),
		}
		notifiers = append(notifiers, telegramNotifier)
	}

	if topic := os.Getenv("NOTIFIER_NTFY_TOPIC"); topic != "" {
		ntfyNotifier := &notifier.NtfyNotifier{
			Topic:  topic,
			Server: getEnvOrDefault("NOTIFIER_NTFY_SERVER", "https://ntfy.sh"),
		}
		notifiers = append(notifiers, ntfyNotifier)
	}

	if len(notifiers) == 0 {
		notifiers = append(notifiers, notifier.LogNotifier{})
	}

	for _, n := range notifiers {
		log.Infof("%s %s notifier enabled", logcolors.LogNotifier, getNotifierTypeName(n))
	}

	return notifiers
}

// newBackend creates the AI backend selected by AI_PROVIDER
func newBackend(ctx context.Context) (gateway.Backend, error) {
	switch conf.Provider() {
	case "gemini":
		return gemini.New(ctx, gemini.Config{
			APIKey:       conf.Configuration.GeminiAPIKey,
			SearchModel:  conf.Configuration.GeminiSearchModel,
			AnalyzeModel: conf.Configuration.GeminiAnalyzeModel,
			RefineModel:  conf.Configuration.GeminiRefineModel,
			Timeout:      conf.UpstreamTimeout(),
			BaseURL:      conf.Configuration.GeminiBaseURL,
		})
	case "openai":
		return openai.New(openai.Config{
			APIKey:  conf.Configuration.OpenAIAPIKey,
			BaseURL: conf.Configuration.OpenAIBaseURL,
			Model:   conf.Configuration.OpenAIModel,
			Timeout: conf.UpstreamTimeout(),
		})
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", conf.Provider())
	}
}
