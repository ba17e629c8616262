package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
database:
  user: app
  password: secret
  database: motoride

rabbitmq:
  user: guest
  password: guest
`

func TestLoadFromFileDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "motoride", cfg.Database.Name)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, 5672, cfg.RabbitMQ.Port)
	assert.NotEmpty(t, cfg.JWT.SecretKey)

	assert.Equal(t, 3*time.Minute, cfg.BookingTimeout())
	assert.Equal(t, 10*time.Second, cfg.AcceptLockTTL())
	assert.Equal(t, 10*time.Second, cfg.SmartCancelDelay())
	assert.Equal(t, 30*time.Second, cfg.ReaperInterval())
	assert.Equal(t, 5*time.Second, cfg.TrackingTimeout())
	assert.True(t, cfg.Booking.AutoCancelEnabled)

	assert.Equal(t, 1.0, cfg.Matching.RadiusKM)
	assert.Equal(t, 3.0, cfg.Matching.MinRating)
	assert.Equal(t, 5.0, cfg.Matching.MaxDistanceKM)
	assert.Equal(t, 2, cfg.Matching.PreferredTripThreshold)
	assert.Equal(t, 3, cfg.Matching.BlockedCancellationThreshold)
	assert.Equal(t, 30, cfg.Matching.BlockedWindowDays)
	assert.Equal(t, 90, cfg.Matching.HistoryWindowDays)
	assert.Equal(t, 50, cfg.Matching.HistoryLimit)
}

func TestLoadFromFileExplicitValues(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig+`
booking:
  timeout_minutes: 5
  accept_lock_seconds: 20
matching:
  radius_km: 2.5
  min_rating: 4
`))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.BookingTimeout())
	assert.Equal(t, 20*time.Second, cfg.AcceptLockTTL())
	assert.Equal(t, 2.5, cfg.Matching.RadiusKM)
	assert.Equal(t, 4.0, cfg.Matching.MinRating)
}

func TestExplicitFalseAutoCancelSurvivesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig+`
booking:
  auto_cancel_enabled: false
`))
	require.NoError(t, err)
	assert.False(t, cfg.Booking.AutoCancelEnabled)
}

func TestLoadFromFileMissingRequired(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, `
database:
  user: app
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.password is required")
}

func TestLoadFromFileMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
