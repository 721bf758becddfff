package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/gatekeeper/internal/config"
)

type envConfig struct {
	Env                           string        `env:"ENV" envDefault:"production"`
	HTTPPort                      int           `env:"HTTP_PORT" envDefault:"8080"`
	JWTSecret                     string        `env:"JWT_SECRET,required"`
	TokenTTL                      time.Duration `env:"TOKEN_TTL" envDefault:"1h"`
	TokenServiceURL               string        `env:"TOKEN_SERVICE_URL"`
	CallHubURL                    string        `env:"CALL_HUB_URL"`
	DatabaseURL                   string        `env:"DATABASE_URL"`
	CallType                      string        `env:"CALL_TYPE" envDefault:"default"`
	MaxParticipants               int           `env:"MAX_PARTICIPANTS" envDefault:"2"`
	ApprovalTimeoutSeconds        int           `env:"APPROVAL_TIMEOUT_SECONDS" envDefault:"20"`
	CountdownTick                 time.Duration `env:"COUNTDOWN_TICK" envDefault:"1s"`
	PollInterval                  time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
	FullRetryDelay                time.Duration `env:"FULL_RETRY_DELAY" envDefault:"5s"`
	RecordingQuality              string        `env:"RECORDING_QUALITY" envDefault:"360p"`
	RecordingMode                 string        `env:"RECORDING_MODE" envDefault:"available"`
	NotificationWebhookURL        string        `env:"NOTIFICATION_WEBHOOK_URL"`
	RequestNotificationPermission bool          `env:"REQUEST_NOTIFICATION_PERMISSION" envDefault:"false"`
	AllowedOrigin                 string        `env:"ALLOWED_ORIGIN"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                           raw.Env,
		HTTPPort:                      raw.HTTPPort,
		JWTSecret:                     raw.JWTSecret,
		TokenTTL:                      raw.TokenTTL,
		TokenServiceURL:               raw.TokenServiceURL,
		CallHubURL:                    raw.CallHubURL,
		DatabaseURL:                   raw.DatabaseURL,
		CallType:                      raw.CallType,
		MaxParticipants:               raw.MaxParticipants,
		ApprovalTimeoutSeconds:        raw.ApprovalTimeoutSeconds,
		CountdownTick:                 raw.CountdownTick,
		PollInterval:                  raw.PollInterval,
		FullRetryDelay:                raw.FullRetryDelay,
		RecordingQuality:              raw.RecordingQuality,
		RecordingMode:                 raw.RecordingMode,
		NotificationWebhookURL:        raw.NotificationWebhookURL,
		RequestNotificationPermission: raw.RequestNotificationPermission,
		AllowedOrigin:                 raw.AllowedOrigin,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
