package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a run notification.
type TelegramMessage struct {
	Success   bool
	Host      string
	StartTime time.Time
	Duration  time.Duration

	// One entry per app that was attempted, in order.
	Runs []RunResult

	// Error info (if failed).
	FailedApp    string
	FailedStep   string
	ErrorMessage string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
