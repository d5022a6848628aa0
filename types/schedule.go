package types

import (
	"fmt"
	"time"

	"github.com/RezaEskandarii/recurfire/custom_errors"
	"github.com/RezaEskandarii/recurfire/pgk/parser"
	"github.com/cockroachdb/errors"
)

type ScheduleKind string

const (
	ScheduleKindInterval ScheduleKind = "interval"
	ScheduleKindCron     ScheduleKind = "cron"
)

// MinIntervalMs is the shortest accepted interval.
const MinIntervalMs int64 = 1000

// Schedule describes when a recurring job fires. It never changes after registration.
type Schedule struct {
	Kind       ScheduleKind `json:"kind"`
	IntervalMs int64        `json:"ms,omitempty"`
	CronSpec   string       `json:"cronspec,omitempty"`
}

// Interval builds a fixed-interval schedule of ms milliseconds.
func Interval(ms int64) Schedule {
	return Schedule{Kind: ScheduleKindInterval, IntervalMs: ms}
}

// Every builds a fixed-interval schedule from a duration, truncated to milliseconds.
func Every(d time.Duration) Schedule {
	return Interval(d.Milliseconds())
}

// Cron builds a cron schedule.
func Cron(spec string) Schedule {
	return Schedule{Kind: ScheduleKindCron, CronSpec: spec}
}

// Validate checks the schedule against the interval minimum or the cron grammar.
func (s Schedule) Validate() error {
	switch s.Kind {
	case ScheduleKindInterval:
		if s.IntervalMs < MinIntervalMs {
			return errors.WithHint(
				errors.Wrapf(custom_errors.ErrInvalidInterval, "interval of %dms", s.IntervalMs),
				fmt.Sprintf("intervals must be at least %dms", MinIntervalMs),
			)
		}
		return nil
	case ScheduleKindCron:
		if err := parser.Validate(s.CronSpec); err != nil {
			return errors.Wrapf(custom_errors.ErrInvalidCronSpec, "%v", err)
		}
		return nil
	default:
		return errors.Newf("unknown schedule kind %q", s.Kind)
	}
}

// NextFireTime returns the fire time that follows anchor.
// Interval schedules add their period to anchor, so repeated application never drifts.
func (s Schedule) NextFireTime(anchor time.Time) (time.Time, error) {
	switch s.Kind {
	case ScheduleKindInterval:
		return anchor.Add(s.Period()), nil
	case ScheduleKindCron:
		next, err := parser.NextFireTime(s.CronSpec, anchor)
		if err != nil {
			return time.Time{}, errors.Wrapf(custom_errors.ErrInvalidCronSpec, "%v", err)
		}
		return next, nil
	default:
		return time.Time{}, errors.Newf("unknown schedule kind %q", s.Kind)
	}
}

// Period is the interval length; zero for cron schedules.
func (s Schedule) Period() time.Duration {
	if s.Kind != ScheduleKindInterval {
		return 0
	}
	return time.Duration(s.IntervalMs) * time.Millisecond
}

func (s Schedule) String() string {
	switch s.Kind {
	case ScheduleKindInterval:
		return fmt.Sprintf("every %s", s.Period())
	case ScheduleKindCron:
		return fmt.Sprintf("cron %q", s.CronSpec)
	}
	return string(s.Kind)
}
