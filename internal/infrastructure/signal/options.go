package signal

import (
	"fmt"
	"time"

	"livesession/pkg/config"
	"livesession/pkg/retry"
	"livesession/pkg/utils"
)

// Options tune one session client.
type Options struct {
	URL      string
	ClientID string

	// MaxMessages caps the transcript; 0 keeps everything.
	MaxMessages int

	HandshakeTimeout time.Duration
	// AuthTimeout bounds the Authenticating state; 0 waits indefinitely.
	AuthTimeout time.Duration

	HeartbeatInterval time.Duration
	// MaxMissedPongs forces a reconnect after that many silent intervals; 0 disables it.
	MaxMissedPongs int

	Reconnect retry.Config
}

func DefaultOptions(url string) Options {
	return Options{
		URL:               url,
		ClientID:          utils.GenerateClientID(),
		HandshakeTimeout:  10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MaxMissedPongs:    2,
		Reconnect:         retry.ReconnectConfig(),
	}
}

// OptionsFromConfig maps the session, transport, heartbeat and reconnect
// sections of cfg.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	url, err := cfg.EndpointURL()
	if err != nil {
		return Options{}, fmt.Errorf("failed to build session endpoint: %w", err)
	}

	opts := DefaultOptions(url)
	opts.MaxMessages = cfg.Session.MaxMessages
	opts.HandshakeTimeout = cfg.Transport.HandshakeTimeout
	opts.AuthTimeout = cfg.Session.AuthTimeout
	opts.HeartbeatInterval = cfg.Heartbeat.Interval
	opts.MaxMissedPongs = cfg.Heartbeat.MaxMissedPongs
	opts.Reconnect = retry.Config{
		Enabled:      cfg.Reconnect.Enabled,
		MaxAttempts:  cfg.Reconnect.MaxAttempts,
		InitialDelay: cfg.Reconnect.InitialDelay,
		MaxDelay:     cfg.Reconnect.MaxDelay,
		Multiplier:   cfg.Reconnect.Multiplier,
		Jitter:       cfg.Reconnect.Jitter,
	}
	return opts, nil
}

// DialerConfigFromConfig maps the transport section of cfg.
func DialerConfigFromConfig(cfg *config.Config) DialerConfig {
	return DialerConfig{
		HandshakeTimeout:    cfg.Transport.HandshakeTimeout,
		WriteTimeout:        cfg.Transport.WriteTimeout,
		MaxMessageSizeBytes: cfg.Transport.MaxMessageSizeBytes,
		ReadBufferSize:      cfg.Transport.ReadBufferSize,
		WriteBufferSize:     cfg.Transport.WriteBufferSize,
	}
}
