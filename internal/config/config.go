package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env                           string
	HTTPPort                      int
	JWTSecret                     string
	TokenTTL                      time.Duration
	TokenServiceURL               string
	CallHubURL                    string
	DatabaseURL                   string
	CallType                      string
	MaxParticipants               int
	ApprovalTimeoutSeconds        int
	CountdownTick                 time.Duration
	PollInterval                  time.Duration
	FullRetryDelay                time.Duration
	RecordingQuality              string
	RecordingMode                 string
	NotificationWebhookURL        string
	RequestNotificationPermission bool
	AllowedOrigin                 string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT must be a valid port, got %d", c.HTTPPort)
	}
	if c.MaxParticipants < 2 {
		return fmt.Errorf("MAX_PARTICIPANTS must be at least 2, got %d", c.MaxParticipants)
	}
	if c.ApprovalTimeoutSeconds <= 0 {
		return fmt.Errorf("APPROVAL_TIMEOUT_SECONDS must be positive, got %d", c.ApprovalTimeoutSeconds)
	}
	for _, d := range c.durationChecks() {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "JWT_SECRET", value: c.JWTSecret},
		{name: "CALL_TYPE", value: c.CallType},
		{name: "RECORDING_QUALITY", value: c.RecordingQuality},
		{name: "RECORDING_MODE", value: c.RecordingMode},
	}
}

type durationEnvField struct {
	name  string
	value time.Duration
}

func (c *Config) durationChecks() []durationEnvField {
	return []durationEnvField{
		{name: "TOKEN_TTL", value: c.TokenTTL},
		{name: "COUNTDOWN_TICK", value: c.CountdownTick},
		{name: "POLL_INTERVAL", value: c.PollInterval},
		{name: "FULL_RETRY_DELAY", value: c.FullRetryDelay},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) UsesRemoteHub() bool {
	return c.CallHubURL != ""
}

func (c *Config) UsesRemoteTokenService() bool {
	return c.TokenServiceURL != ""
}
