package metrics

import (
	"fmt"
	"strings"
	"time"
)

// Period selects how far back a metrics query looks.
type Period int

const (
	PeriodHour Period = iota
	PeriodDay
	PeriodWeek
)

func (p Period) String() string {
	switch p {
	case PeriodHour:
		return "hour"
	case PeriodDay:
		return "day"
	case PeriodWeek:
		return "week"
	default:
		return fmt.Sprintf("period(%d)", int(p))
	}
}

// Duration is the span covered by the period.
func (p Period) Duration() time.Duration {
	switch p {
	case PeriodDay:
		return 24 * time.Hour
	case PeriodWeek:
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// ParsePeriod accepts "hour", "day" or "week"; empty means hour.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hour":
		return PeriodHour, nil
	case "day":
		return PeriodDay, nil
	case "week":
		return PeriodWeek, nil
	default:
		return 0, fmt.Errorf("unknown metrics period %q (want hour, day or week)", s)
	}
}
