package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mx-space/presence/internal/config"
)

var errTimezone = errors.New("expect IANA zone (e.g. Asia/Shanghai) or UTC offset (e.g. +08:00)")

// applyRuntimeSettings switches the process zone. Ledger scores are Unix seconds and do not
// depend on it; only log timestamps and archive object keys do.
func applyRuntimeSettings(cfg *config.AppConfig) error {
	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		return nil
	}
	loc, err := parseTimezoneLocation(tz)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	time.Local = loc
	return nil
}

func parseTimezoneLocation(raw string) (*time.Location, error) {
	tz := strings.TrimSpace(raw)
	if tz == "" {
		return time.Local, nil
	}
	if loc, err := time.LoadLocation(tz); err == nil {
		return loc, nil
	}
	if loc, ok := fixedOffset(tz); ok {
		return loc, nil
	}
	return nil, errTimezone
}

// fixedOffset accepts "+HH:MM" and "-HH:MM" within one day.
func fixedOffset(tz string) (*time.Location, bool) {
	t, err := time.Parse("-07:00", tz)
	if err != nil || tz[4] > '5' {
		return nil, false
	}
	_, offset := t.Zone()
	if offset <= -86400 || offset >= 86400 {
		return nil, false
	}
	return time.FixedZone(tz, offset), true
}

// humanizeDuration truncates d to its largest whole unit, from seconds up to days.
func humanizeDuration(d time.Duration) string {
	unit := time.Second
	for _, u := range []time.Duration{24 * time.Hour, time.Hour, time.Minute} {
		if d >= u {
			unit = u
			break
		}
	}
	return d.Truncate(unit).String()
}
