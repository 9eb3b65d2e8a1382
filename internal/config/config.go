package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// DefaultBrokerURL is the raw WebSocket endpoint exposed by the
	// SockJS-enabled broker.
	DefaultBrokerURL = "ws://localhost:8080/ws/websocket"
	// DefaultAPIURL is the REST backend base URL.
	DefaultAPIURL = "http://localhost:8080/api"
	// DefaultReconnectDelay is the flat delay between connection attempts.
	DefaultReconnectDelay = 5 * time.Second
)

type Config struct {
	// BrokerURL is the STOMP-over-WebSocket endpoint.
	BrokerURL string
	// APIURL is the base URL of the REST backend.
	APIURL string

	// Home is the directory where local state is kept.
	Home string
	// TokenFile is the path of the stored bearer credential.
	TokenFile string

	// UserID is the local user id. Zero means "derive from the token".
	UserID int64

	// ReconnectDelay is the fixed backoff between connection attempts.
	ReconnectDelay time.Duration

	// LogLevel is the logger threshold name (trace|debug|info|warn|error).
	LogLevel string
	// Debug enables verbose logging.
	Debug bool
}

// Load loads configuration from environment and defaults
func Load() (*Config, error) {
	home := os.Getenv("PRIMESHOP_HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		home = filepath.Join(userHome, ".primeshop")
	}

	brokerURL := getenv("PRIMESHOP_BROKER_URL", DefaultBrokerURL)
	apiURL := getenv("PRIMESHOP_API_URL", DefaultAPIURL)

	tokenFile := os.Getenv("PRIMESHOP_TOKEN_FILE")
	if tokenFile == "" {
		tokenFile = filepath.Join(home, "access.token")
	}

	var userID int64
	if raw := os.Getenv("PRIMESHOP_USER_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid PRIMESHOP_USER_ID %q", raw)
		}
		userID = id
	}

	delay := DefaultReconnectDelay
	if raw := os.Getenv("PRIMESHOP_RECONNECT_DELAY"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid PRIMESHOP_RECONNECT_DELAY %q", raw)
		}
		delay = d
	}

	debug := os.Getenv("DEBUG") == "true" || os.Getenv("DEBUG") == "1"
	logLevel := getenv("PRIMESHOP_LOG_LEVEL", "info")
	if debug && logLevel == "info" {
		logLevel = "debug"
	}

	return &Config{
		BrokerURL:      brokerURL,
		APIURL:         apiURL,
		Home:           home,
		TokenFile:      tokenFile,
		UserID:         userID,
		ReconnectDelay: delay,
		LogLevel:       logLevel,
		Debug:          debug,
	}, nil
}

// EnsureHome creates the state directory.
func (c *Config) EnsureHome() error {
	return os.MkdirAll(c.Home, 0700)
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
