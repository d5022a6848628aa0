// Package parser validates cron specifications and computes their next fire time.
//
// Grammar: standard 5-field cron (minute hour day-of-month month day-of-week)
// with an optional leading seconds field, the robfig descriptors (@daily,
// @every 1h, ...) and an optional CRON_TZ= prefix. Day-of-week accepts 0-7
// where both 0 and 7 mean Sunday.
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron parses expr into a robfig schedule.
func ParseCron(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty cron expression")
	}
	normalized, err := normalizeSunday(expr)
	if err != nil {
		return nil, err
	}
	sched, err := cronParser.Parse(normalized)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// Validate returns nil when expr is a usable cron specification.
func Validate(expr string) error {
	_, err := ParseCron(expr)
	return err
}

// NextFireTime returns the first instant strictly after from that matches expr.
// Expressions without a CRON_TZ= prefix are evaluated in UTC whatever the
// location of from, and the result is in UTC.
func NextFireTime(expr string, from time.Time) (time.Time, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(from.UTC())
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron expression %q never fires after %s", expr, from.Format(time.RFC3339))
	}
	return next, nil
}

// normalizeSunday rewrites day-of-week value 7 to 0, which is the only
// Sunday robfig accepts.
func normalizeSunday(expr string) (string, error) {
	if strings.HasPrefix(expr, "@") {
		return expr, nil
	}

	fields := strings.Fields(expr)
	var tz string
	if len(fields) > 0 && (strings.HasPrefix(fields[0], "CRON_TZ=") || strings.HasPrefix(fields[0], "TZ=")) {
		tz, fields = fields[0], fields[1:]
	}
	if len(fields) != 5 && len(fields) != 6 {
		return "", fmt.Errorf("invalid cron expression %q: expected 5 or 6 fields, found %d", expr, len(fields))
	}

	dow := len(fields) - 1
	parts := strings.Split(fields[dow], ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, normalizeDowToken(part)...)
	}
	fields[dow] = strings.Join(out, ",")

	if tz != "" {
		fields = append([]string{tz}, fields...)
	}
	return strings.Join(fields, " "), nil
}

func normalizeDowToken(token string) []string {
	base, step, hasStep := strings.Cut(token, "/")

	lo, hi, isRange := strings.Cut(base, "-")
	if !isRange {
		if base == "7" && !hasStep {
			return []string{"0"}
		}
		return []string{token}
	}
	if hi != "7" {
		return []string{token}
	}

	start, err := strconv.Atoi(lo)
	if err != nil {
		// named days, let robfig report what is wrong
		return []string{token}
	}
	if start == 7 {
		return []string{"0"}
	}

	stride := 1
	if hasStep {
		if stride, err = strconv.Atoi(step); err != nil || stride <= 0 {
			return []string{token}
		}
	}

	rewritten := fmt.Sprintf("%d-6", start)
	if hasStep {
		rewritten += "/" + step
	}
	result := []string{rewritten}
	if (7-start)%stride == 0 {
		result = append(result, "0")
	}
	return result
}
