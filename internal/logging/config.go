package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Config holds the configuration for the logger.
type Config struct {
	// Level is the minimum log level to output (DEBUG, INFO, WARN, ERROR, FATAL)
	Level string `yaml:"level" env:"LOG_LEVEL" envDefault:"info"`
	// Format is the output format (json, text)
	Format string `yaml:"format" env:"LOG_FORMAT" envDefault:"text"`
	// Output is the output destination (stdout, stderr, or file path)
	Output string `yaml:"output" env:"LOG_OUTPUT" envDefault:"stderr"`
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	}
}

// Validate checks the level and format names.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	switch Format(strings.ToLower(c.Format)) {
	case JSONFormat, TextFormat, "":
		return nil
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	output, err := getOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	return NewWithFormat(parseLevel(cfg.Level), output, Format(strings.ToLower(cfg.Format))), nil
}

// ParseLevel converts a level name, in any case, to a LogLevel. The empty
// string means InfoLevel.
func ParseLevel(level string) (LogLevel, error) {
	if level == "" {
		return InfoLevel, nil
	}
	lvl := LogLevel(strings.ToUpper(level))
	if lvl == "WARNING" {
		lvl = WarnLevel
	}
	if _, ok := levelRank[lvl]; !ok {
		return InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
	return lvl, nil
}

// parseLevel is ParseLevel falling back to InfoLevel.
func parseLevel(level string) LogLevel {
	lvl, err := ParseLevel(level)
	if err != nil {
		return InfoLevel
	}
	return lvl
}

// getOutput returns an io.Writer for the given output destination.
func getOutput(output string) (io.Writer, error) {
	switch output {
	case "stdout":
		return os.Stdout, nil
	case "stderr", "":
		return os.Stderr, nil
	default:
		// Treat as file path
		file, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		return file, nil
	}
}
