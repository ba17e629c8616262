package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parseYAML parses the specific two-level mapping used by config.yaml
func parseYAML(r io.Reader, cfg *Config) error {
	type section int
	const (
		none section = iota
		db
		rd
		rm
		ws
		sv
		jw
		bk
		mt
	)

	scanner := bufio.NewScanner(r)
	var cur section

	lineNo := 0
	seenTop := map[section]bool{}

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()

		// strip comments
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			raw = raw[:i]
		}

		line := strings.TrimRight(raw, " \t\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		// top-level section? (no leading spaces)
		if len(line) > 0 && (line[0] != ' ' && line[0] != '\t') {
			name := strings.TrimSpace(line)
			var next section
			switch name {
			case "database:":
				next = db
			case "redis:":
				next = rd
			case "rabbitmq:":
				next = rm
			case "websocket:":
				next = ws
			case "services:":
				next = sv
			case "jwt:":
				next = jw
			case "booking:":
				next = bk
			case "matching:":
				next = mt
			default:
				return fmt.Errorf("line %d: unknown top-level key %q", lineNo, strings.TrimSuffix(name, ":"))
			}
			if seenTop[next] {
				return fmt.Errorf("line %d: duplicate %q section", lineNo, strings.TrimSuffix(name, ":"))
			}
			seenTop[next] = true
			cur = next
			continue
		}

		// expect indented "key: value"
		if cur == none {
			return fmt.Errorf("line %d: key without a section", lineNo)
		}
		trim := strings.TrimSpace(line)
		colon := strings.IndexByte(trim, ':')
		if colon <= 0 {
			return fmt.Errorf("line %d: expected 'key: value'", lineNo)
		}
		key := strings.TrimSpace(trim[:colon])
		val := strings.TrimLeft(strings.TrimSpace(trim[colon+1:]), " \t")

		var err error
		switch cur {
		case db:
			err = setDatabase(cfg, key, val)
		case rd:
			err = setRedis(cfg, key, val)
		case rm:
			err = setRabbitMQ(cfg, key, val)
		case ws:
			err = setWebSocket(cfg, key, val)
		case sv:
			err = setServices(cfg, key, val)
		case jw:
			err = setJWT(cfg, key, val)
		case bk:
			err = setBooking(cfg, key, val)
		case mt:
			err = setMatching(cfg, key, val)
		}
		if err != nil {
			return fmt.Errorf("line %d: %v", lineNo, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	return nil
}

func setDatabase(cfg *Config, key, val string) error {
	switch key {
	case "host":
		cfg.Database.Host = resolveScalar(val)
	case "port":
		return assignInt(&cfg.Database.Port, "database.port", val)
	case "user":
		cfg.Database.User = resolveScalar(val)
	case "password":
		cfg.Database.Password = resolveScalar(val)
	case "database":
		cfg.Database.Name = resolveScalar(val)
	default:
		return fmt.Errorf("unknown key in database: %q", key)
	}
	return nil
}

func setRedis(cfg *Config, key, val string) error {
	switch key {
	case "host":
		cfg.Redis.Host = resolveScalar(val)
	case "port":
		return assignInt(&cfg.Redis.Port, "redis.port", val)
	case "password":
		cfg.Redis.Password = resolveScalar(val)
	case "db":
		return assignInt(&cfg.Redis.DB, "redis.db", val)
	default:
		return fmt.Errorf("unknown key in redis: %q", key)
	}
	return nil
}

func setRabbitMQ(cfg *Config, key, val string) error {
	switch key {
	case "host":
		cfg.RabbitMQ.Host = resolveScalar(val)
	case "port":
		return assignInt(&cfg.RabbitMQ.Port, "rabbitmq.port", val)
	case "user":
		cfg.RabbitMQ.User = resolveScalar(val)
	case "password":
		cfg.RabbitMQ.Password = resolveScalar(val)
	default:
		return fmt.Errorf("unknown key in rabbitmq: %q", key)
	}
	return nil
}

func setWebSocket(cfg *Config, key, val string) error {
	switch key {
	case "port":
		return assignInt(&cfg.WebSocket.Port, "websocket.port", val)
	default:
		return fmt.Errorf("unknown key in websocket: %q", key)
	}
}

func setServices(cfg *Config, key, val string) error {
	switch key {
	case "booking_service":
		return assignInt(&cfg.Services.BookingServicePort, "services.booking_service", val)
	case "matching_service":
		return assignInt(&cfg.Services.MatchingServicePort, "services.matching_service", val)
	case "notify_service":
		return assignInt(&cfg.Services.NotifyServicePort, "services.notify_service", val)
	case "tracking_base_url":
		cfg.Services.TrackingBaseURL = resolveScalar(val)
	default:
		return fmt.Errorf("unknown key in services: %q", key)
	}
	return nil
}

func setJWT(cfg *Config, key, val string) error {
	switch key {
	case "secret_key":
		cfg.JWT.SecretKey = resolveScalar(val)
	default:
		return fmt.Errorf("unknown key in jwt: %q", key)
	}
	return nil
}

func setBooking(cfg *Config, key, val string) error {
	switch key {
	case "timeout_minutes":
		return assignInt(&cfg.Booking.TimeoutMinutes, "booking.timeout_minutes", val)
	case "auto_cancel_enabled":
		b, err := parseBool(val)
		if err != nil {
			return fmt.Errorf("booking.auto_cancel_enabled must be bool: %v", err)
		}
		cfg.Booking.AutoCancelEnabled = b
		cfg.Booking.autoCancelSet = true
	case "accept_lock_seconds":
		return assignInt(&cfg.Booking.AcceptLockSeconds, "booking.accept_lock_seconds", val)
	case "smart_cancel_delay_seconds":
		return assignInt(&cfg.Booking.SmartCancelDelaySeconds, "booking.smart_cancel_delay_seconds", val)
	case "reaper_interval_seconds":
		return assignInt(&cfg.Booking.ReaperIntervalSeconds, "booking.reaper_interval_seconds", val)
	case "tracking_timeout_seconds":
		return assignInt(&cfg.Booking.TrackingTimeoutSeconds, "booking.tracking_timeout_seconds", val)
	default:
		return fmt.Errorf("unknown key in booking: %q", key)
	}
	return nil
}

func setMatching(cfg *Config, key, val string) error {
	switch key {
	case "radius_km":
		return assignFloat(&cfg.Matching.RadiusKM, "matching.radius_km", val)
	case "min_rating":
		return assignFloat(&cfg.Matching.MinRating, "matching.min_rating", val)
	case "max_distance_km":
		return assignFloat(&cfg.Matching.MaxDistanceKM, "matching.max_distance_km", val)
	case "preferred_trip_threshold":
		return assignInt(&cfg.Matching.PreferredTripThreshold, "matching.preferred_trip_threshold", val)
	case "blocked_cancellation_threshold":
		return assignInt(&cfg.Matching.BlockedCancellationThreshold, "matching.blocked_cancellation_threshold", val)
	case "blocked_window_days":
		return assignInt(&cfg.Matching.BlockedWindowDays, "matching.blocked_window_days", val)
	case "history_window_days":
		return assignInt(&cfg.Matching.HistoryWindowDays, "matching.history_window_days", val)
	case "history_limit":
		return assignInt(&cfg.Matching.HistoryLimit, "matching.history_limit", val)
	default:
		return fmt.Errorf("unknown key in matching: %q", key)
	}
}

// ----- scalar helpers -----

func assignInt(dst *int, name, val string) error {
	n, err := strconv.Atoi(resolveScalar(val))
	if err != nil {
		return fmt.Errorf("%s must be int: %v", name, err)
	}
	*dst = n
	return nil
}

func assignFloat(dst *float64, name, val string) error {
	f, err := strconv.ParseFloat(resolveScalar(val), 64)
	if err != nil {
		return fmt.Errorf("%s must be a number: %v", name, err)
	}
	*dst = f
	return nil
}

func parseBool(val string) (bool, error) {
	return strconv.ParseBool(strings.ToLower(resolveScalar(val)))
}

// resolveScalar trims whitespace and removes surrounding quotes from YAML-like scalars.
// For example:
//
//	"localhost"  -> localhost
//	'password123' -> password123
//	localhost     -> localhost
//
// This ensures values like jwt.secret_key are not stored with extra quotes.
func resolveScalar(s string) string {
	s = strings.TrimSpace(s)

	// if value is quoted with "..." or '...', remove quotes safely
	n := len(s)
	if n >= 2 {
		if (s[0] == '"' && s[n-1] == '"') || (s[0] == '\'' && s[n-1] == '\'') {
			if unq, err := strconv.Unquote(s); err == nil {
				return unq
			}
			// fallback if strconv.Unquote fails (e.g., mismatched quotes)
			return s[1 : n-1]
		}
	}

	return s
}
