package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string // YAML key: "database"
	}
	Redis struct {
		Host     string
		Port     int
		Password string
		DB       int
	}
	RabbitMQ struct {
		Host     string
		Port     int
		User     string
		Password string
	}
	WebSocket struct {
		Port int
	}
	Services struct {
		BookingServicePort  int
		MatchingServicePort int
		NotifyServicePort   int
		TrackingBaseURL     string
	}
	JWT struct {
		SecretKey string `yaml:"secret_key"`
	}
	Booking struct {
		TimeoutMinutes          int
		AutoCancelEnabled       bool
		AcceptLockSeconds       int
		SmartCancelDelaySeconds int
		ReaperIntervalSeconds   int
		TrackingTimeoutSeconds  int

		// set when auto_cancel_enabled appears in the file, so an explicit
		// "false" is not overwritten by the default
		autoCancelSet bool
	}
	Matching struct {
		RadiusKM                     float64
		MinRating                    float64
		MaxDistanceKM                float64
		PreferredTripThreshold       int
		BlockedCancellationThreshold int
		BlockedWindowDays            int
		HistoryWindowDays            int
		HistoryLimit                 int
	}
}

// LoadFromFile loads config from a YAML file to a Config struct, applies defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := parseYAML(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// BookingTimeout returns the pending-booking TTL as a duration.
func (c *Config) BookingTimeout() time.Duration {
	return time.Duration(c.Booking.TimeoutMinutes) * time.Minute
}

// AcceptLockTTL returns the accept-lock expiry as a duration.
func (c *Config) AcceptLockTTL() time.Duration {
	return time.Duration(c.Booking.AcceptLockSeconds) * time.Second
}

// SmartCancelDelay returns the grace period applied before an
// all-drivers-rejected cancellation.
func (c *Config) SmartCancelDelay() time.Duration {
	return time.Duration(c.Booking.SmartCancelDelaySeconds) * time.Second
}

// ReaperInterval returns the timeout reaper cadence.
func (c *Config) ReaperInterval() time.Duration {
	return time.Duration(c.Booking.ReaperIntervalSeconds) * time.Second
}

// TrackingTimeout returns the hard deadline for tracking RPC probes.
func (c *Config) TrackingTimeout() time.Duration {
	return time.Duration(c.Booking.TrackingTimeoutSeconds) * time.Second
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// Redis
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// WebSocket
	if cfg.WebSocket.Port == 0 {
		cfg.WebSocket.Port = 8080
	}

	// Services
	if cfg.Services.BookingServicePort == 0 {
		cfg.Services.BookingServicePort = 3000
	}
	if cfg.Services.MatchingServicePort == 0 {
		cfg.Services.MatchingServicePort = 3001
	}
	if cfg.Services.NotifyServicePort == 0 {
		cfg.Services.NotifyServicePort = 3002
	}
	if cfg.Services.TrackingBaseURL == "" {
		cfg.Services.TrackingBaseURL = "http://localhost:3003"
	}

	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}

	// Booking lifecycle tunables
	if cfg.Booking.TimeoutMinutes == 0 {
		cfg.Booking.TimeoutMinutes = 3
	}
	if !cfg.Booking.autoCancelSet {
		cfg.Booking.AutoCancelEnabled = true
	}
	if cfg.Booking.AcceptLockSeconds == 0 {
		cfg.Booking.AcceptLockSeconds = 10
	}
	if cfg.Booking.SmartCancelDelaySeconds == 0 {
		cfg.Booking.SmartCancelDelaySeconds = 10
	}
	if cfg.Booking.ReaperIntervalSeconds == 0 {
		cfg.Booking.ReaperIntervalSeconds = 30
	}
	if cfg.Booking.TrackingTimeoutSeconds == 0 {
		cfg.Booking.TrackingTimeoutSeconds = 5
	}

	// Matching tunables
	if cfg.Matching.RadiusKM == 0 {
		cfg.Matching.RadiusKM = 1
	}
	if cfg.Matching.MinRating == 0 {
		cfg.Matching.MinRating = 3.0
	}
	if cfg.Matching.MaxDistanceKM == 0 {
		cfg.Matching.MaxDistanceKM = 5
	}
	if cfg.Matching.PreferredTripThreshold == 0 {
		cfg.Matching.PreferredTripThreshold = 2
	}
	if cfg.Matching.BlockedCancellationThreshold == 0 {
		cfg.Matching.BlockedCancellationThreshold = 3
	}
	if cfg.Matching.BlockedWindowDays == 0 {
		cfg.Matching.BlockedWindowDays = 30
	}
	if cfg.Matching.HistoryWindowDays == 0 {
		cfg.Matching.HistoryWindowDays = 90
	}
	if cfg.Matching.HistoryLimit == 0 {
		cfg.Matching.HistoryLimit = 50
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.name is required")
	}

	// Redis
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		problems = append(problems, "redis.port must be in 1..65535")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// WebSocket
	if c.WebSocket.Port <= 0 || c.WebSocket.Port > 65535 {
		problems = append(problems, "websocket.port must be in 1..65535")
	}

	// Services
	if c.Services.BookingServicePort <= 0 || c.Services.BookingServicePort > 65535 {
		problems = append(problems, "services.booking_service must be in 1..65535")
	}
	if c.Services.MatchingServicePort <= 0 || c.Services.MatchingServicePort > 65535 {
		problems = append(problems, "services.matching_service must be in 1..65535")
	}
	if c.Services.NotifyServicePort <= 0 || c.Services.NotifyServicePort > 65535 {
		problems = append(problems, "services.notify_service must be in 1..65535")
	}

	// Booking
	if c.Booking.TimeoutMinutes < 1 {
		problems = append(problems, "booking.timeout_minutes must be >= 1")
	}
	if c.Booking.AcceptLockSeconds < 1 {
		problems = append(problems, "booking.accept_lock_seconds must be >= 1")
	}

	// Matching
	if c.Matching.RadiusKM <= 0 {
		problems = append(problems, "matching.radius_km must be > 0")
	}
	if c.Matching.MinRating < 0 || c.Matching.MinRating > 5 {
		problems = append(problems, "matching.min_rating must be in 0..5")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
