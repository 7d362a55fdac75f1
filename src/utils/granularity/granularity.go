// Package granularity parses bar-cadence strings like "1m", "5m", "1h", "1d".
package granularity

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"stratd/src/utils/errors"
)

type TimeUnit string

const (
	UnitSecond TimeUnit = "s"
	UnitMinute TimeUnit = "m"
	UnitHour   TimeUnit = "h"
	UnitDay    TimeUnit = "d"
)

type Granularity struct {
	Multiplier int
	Unit       TimeUnit
}

var pattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// Parse converts a string like "5m" into a Granularity.
func Parse(s string) (Granularity, error) {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	if trimmed == "" {
		return Granularity{}, errors.New("granularity string cannot be empty")
	}
	match := pattern.FindStringSubmatch(trimmed)
	if match == nil {
		return Granularity{}, errors.Newf("invalid granularity format: %q, expected forms like 1m, 5m, 1h, 1d", s)
	}
	multiplier, err := strconv.Atoi(match[1])
	if err != nil {
		return Granularity{}, errors.Wrapf(err, "invalid granularity multiplier in %q", s)
	}
	if multiplier <= 0 {
		return Granularity{}, errors.Newf("granularity multiplier must be positive, got %d", multiplier)
	}
	return Granularity{Multiplier: multiplier, Unit: TimeUnit(match[2])}, nil
}

func (g Granularity) String() string {
	return strconv.Itoa(g.Multiplier) + string(g.Unit)
}

func (g Granularity) Duration() time.Duration {
	switch g.Unit {
	case UnitSecond:
		return time.Duration(g.Multiplier) * time.Second
	case UnitMinute:
		return time.Duration(g.Multiplier) * time.Minute
	case UnitHour:
		return time.Duration(g.Multiplier) * time.Hour
	case UnitDay:
		return time.Duration(g.Multiplier) * 24 * time.Hour
	default:
		return 0
	}
}
