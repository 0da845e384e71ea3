package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultStratum is the single bucket used when no stratification is requested.
const DefaultStratum = "all"

// Stratification selects how release times are bucketed into strata.
type Stratification string

const (
	StratifyDefault   Stratification = "default"
	StratifyYear      Stratification = "year"
	StratifyMonth     Stratification = "month"
	StratifyMonthYear Stratification = "monthyear"
	StratifySeason    Stratification = "season"
	StratifyWeekday   Stratification = "weekday"
	StratifyWeekend   Stratification = "weekend"
	StratifyHour      Stratification = "hour"
)

// Hemisphere flips season labels for receptors south of the equator.
type Hemisphere string

const (
	Northern Hemisphere = "northern"
	Southern Hemisphere = "southern"
)

// Stratifier maps a release time to a stratum label.
type Stratifier func(date time.Time) string

// ParseStratification accepts a stratification name case-insensitively.
// An empty string and "none" both mean StratifyDefault.
func ParseStratification(s string) (Stratification, error) {
	v := Stratification(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case "", "none":
		return StratifyDefault, nil
	case StratifyDefault, StratifyYear, StratifyMonth, StratifyMonthYear,
		StratifySeason, StratifyWeekday, StratifyWeekend, StratifyHour:
		return v, nil
	default:
		return "", fmt.Errorf("unknown stratification %q", s)
	}
}

// ParseHemisphere accepts "northern" or "southern" case-insensitively; empty
// means northern.
func ParseHemisphere(s string) (Hemisphere, error) {
	switch v := Hemisphere(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return Northern, nil
	case Northern, Southern:
		return v, nil
	default:
		return "", fmt.Errorf("unknown hemisphere %q", s)
	}
}

// UnmarshalText decodes a stratification name as accepted by
// ParseStratification.
func (s *Stratification) UnmarshalText(b []byte) error {
	v, err := ParseStratification(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (h *Hemisphere) UnmarshalText(b []byte) error {
	v, err := ParseHemisphere(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// NewStratifier returns the labelling function for a stratification.
// All labels are computed in UTC.
func NewStratifier(kind Stratification, hemisphere Hemisphere) (Stratifier, error) {
	switch kind {
	case StratifyDefault, "":
		return func(time.Time) string { return DefaultStratum }, nil
	case StratifyYear:
		return func(d time.Time) string { return strconv.Itoa(d.UTC().Year()) }, nil
	case StratifyMonth:
		return func(d time.Time) string { return d.UTC().Month().String() }, nil
	case StratifyMonthYear:
		return func(d time.Time) string {
			d = d.UTC()
			return fmt.Sprintf("%s %d", d.Month(), d.Year())
		}, nil
	case StratifySeason:
		if hemisphere == Southern {
			return func(d time.Time) string { return southernSeason(d.UTC().Month()) }, nil
		}
		return func(d time.Time) string { return northernSeason(d.UTC().Month()) }, nil
	case StratifyWeekday:
		return func(d time.Time) string { return d.UTC().Weekday().String() }, nil
	case StratifyWeekend:
		return func(d time.Time) string {
			switch d.UTC().Weekday() {
			case time.Saturday, time.Sunday:
				return "weekend"
			default:
				return "weekday"
			}
		}, nil
	case StratifyHour:
		return func(d time.Time) string { return fmt.Sprintf("%02d", d.UTC().Hour()) }, nil
	default:
		return nil, fmt.Errorf("unknown stratification %q", kind)
	}
}

func northernSeason(m time.Month) string {
	switch m {
	case time.December, time.January, time.February:
		return "winter (DJF)"
	case time.March, time.April, time.May:
		return "spring (MAM)"
	case time.June, time.July, time.August:
		return "summer (JJA)"
	default:
		return "autumn (SON)"
	}
}

func southernSeason(m time.Month) string {
	switch m {
	case time.December, time.January, time.February:
		return "summer (DJF)"
	case time.March, time.April, time.May:
		return "autumn (MAM)"
	case time.June, time.July, time.August:
		return "winter (JJA)"
	default:
		return "spring (SON)"
	}
}
