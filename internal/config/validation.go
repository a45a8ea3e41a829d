package config

import (
	"github.com/liveforge/streamctl/internal/validate"
)

// Validate checks an AppConfig for internally-consistent, usable values.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.NotEmpty("EncoderBin", cfg.EncoderBin)
	v.OneOf("LogLevel", cfg.LogLevel, []string{"debug", "info", "warn", "error"})
	v.Directory("DataDir", cfg.DataDir)
	v.Positive("MaxConcurrentStreams", cfg.MaxConcurrentStreams)

	if cfg.IngestBaseURL != "" {
		v.URL("IngestBaseURL", cfg.IngestBaseURL, []string{"rtmp", "rtmps", "http", "https"})
	}

	return v.Err()
}
