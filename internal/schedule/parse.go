package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind describes the normalized kind of a schedule string.
type Kind int

const (
	KindCron Kind = iota
	KindInterval
)

func (k Kind) String() string {
	if k == KindCron {
		return "cron"
	}
	return "interval"
}

// Spec is a parsed schedule string.
//
// Supported forms:
//   - Cron: "*/5 * * * *", "0 */10 7-22 * * *", "@hourly", "@every 5m"
//   - Interval duration: "5m", "90s"
//   - Interval HH:MM: "00:05" (5 minutes)
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "interval:" or "every:" forces interval parsing
type Spec struct {
	Kind   Kind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm" | "seconds"
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse parses a schedule string into either a cron expression or an interval.
func Parse(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return Spec{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return cronSpec(expr)
	case strings.HasPrefix(low, "interval:"):
		return intervalSpec(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return intervalSpec(s[len("every:"):])
	}

	// Whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return cronSpec(s)
	}
	if sp, err := intervalSpec(s); err == nil {
		return sp, nil
	}
	return Spec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '00:05', or duration like '5m')",
		raw,
	)
}

// Every returns an interval Spec for a fixed number of seconds.
func Every(seconds int) (Spec, error) {
	if seconds <= 0 {
		return Spec{}, fmt.Errorf("interval must be > 0 seconds, got %d", seconds)
	}
	return Spec{Kind: KindInterval, Every: time.Duration(seconds) * time.Second, Source: "seconds"}, nil
}

func cronSpec(expr string) (Spec, error) {
	if _, err := parser.Parse(expr); err != nil {
		return Spec{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return Spec{Kind: KindCron, Cron: expr, Source: "cron"}, nil
}

func intervalSpec(v string) (Spec, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return Spec{}, fmt.Errorf("interval required")
	}
	if reHHMM.MatchString(v) {
		d, err := parseHHMMDuration(v)
		if err != nil {
			return Spec{}, err
		}
		return Spec{Kind: KindInterval, Every: d, Source: "hhmm"}, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return Spec{}, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '5m')", v)
	}
	if d <= 0 {
		return Spec{}, fmt.Errorf("interval must be > 0")
	}
	return Spec{Kind: KindInterval, Every: d, Source: "duration"}, nil
}

func parseHHMMDuration(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}

func (s Spec) String() string {
	if s.Kind == KindCron {
		return s.Cron
	}
	return s.Every.String()
}

// Schedule builds the cron.Schedule for s. Cron expressions are evaluated in
// loc (nil means UTC).
func (s Spec) Schedule(loc *time.Location) (cron.Schedule, error) {
	switch s.Kind {
	case KindInterval:
		if s.Every <= 0 {
			return nil, fmt.Errorf("interval must be > 0")
		}
		return intervalSchedule(s.Every), nil
	case KindCron:
		base, err := parser.Parse(s.Cron)
		if err != nil {
			return nil, err
		}
		if loc == nil {
			loc = time.UTC
		}
		return inLocation{base: base, loc: loc}, nil
	default:
		return nil, fmt.Errorf("unknown schedule kind %d", s.Kind)
	}
}

// intervalSchedule is a fixed delay after the previous activation.
// Unlike cron.Every it keeps sub-second precision.
type intervalSchedule time.Duration

func (d intervalSchedule) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }

type inLocation struct {
	base cron.Schedule
	loc  *time.Location
}

func (s inLocation) Next(t time.Time) time.Time { return s.base.Next(t.In(s.loc)) }
