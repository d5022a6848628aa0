package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/RezaEskandarii/recurfire/custom_errors"
	"github.com/RezaEskandarii/recurfire/types"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleFromFlags(t *testing.T) {
	assert.Equal(t, types.Interval(30000), scheduleFromFlags(30*time.Second, ""))
	assert.Equal(t, types.Cron("0 0 * * *"), scheduleFromFlags(0, "0 0 * * *"))
}

func TestParseArgs(t *testing.T) {
	args, err := parseArgs(`{"to":"ops","retries":2}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"to": "ops", "retries": float64(2)}, args)

	args, err = parseArgs("")
	require.NoError(t, err)
	assert.Nil(t, args)

	_, err = parseArgs(`["not","an","object"]`)
	assert.Error(t, err)
}

func TestPrintJobs(t *testing.T) {
	name := "nightly"
	tick := int64(7)
	jobs := []types.RecurringJob{
		{ID: 1, Name: &name, Schedule: types.Cron("0 0 * * *"), TargetFunction: "log", PendingTickTaskID: &tick},
	}

	var out bytes.Buffer
	require.NoError(t, printJobs(&out, jobs))
	assert.Contains(t, out.String(), "nightly")
	assert.Contains(t, out.String(), "0 0 * * *")
	assert.Contains(t, out.String(), "7")
}

func TestPrintPage(t *testing.T) {
	jobs := []types.RecurringJob{
		{ID: 51, Schedule: types.Interval(1000), TargetFunction: "log"},
	}

	var out bytes.Buffer
	require.NoError(t, printPage(&out, types.NewPage(jobs, 51, 2, 50)))
	assert.Contains(t, out.String(), "51")
	assert.Contains(t, out.String(), "page 2 of 2 (51 jobs)")

	out.Reset()
	require.NoError(t, printPage(&out, types.NewPage([]types.RecurringJob{}, 51, 3, 50)))
	assert.Equal(t, "page 3 of 2 (51 jobs)\n", out.String())
}

func TestFormatEvent(t *testing.T) {
	line := formatEvent(types.RecurringJobEvent{
		Type:     types.EventSkipped,
		JobID:    3,
		JobName:  "heartbeat",
		TaskID:   11,
		Instance: "node-a",
		Reason:   "previous dispatch still active",
		At:       time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC),
	})
	assert.Contains(t, line, "skipped")
	assert.Contains(t, line, "job=3 name=heartbeat task=11")
	assert.Contains(t, line, `reason="previous dispatch still active"`)
	assert.Contains(t, line, "instance=node-a")
}

func TestDescribe_AppendsHints(t *testing.T) {
	err := describe(types.Interval(500).Validate())
	require.Error(t, err)
	assert.True(t, errors.Is(err, custom_errors.ErrInvalidInterval))
	assert.Contains(t, err.Error(), "hint:")
}

func TestSleepHandler(t *testing.T) {
	require.NoError(t, sleepHandler(context.Background(), map[string]any{"ms": float64(1)}))
	assert.Error(t, sleepHandler(context.Background(), map[string]any{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepHandler(ctx, map[string]any{"ms": 60000}), context.Canceled)
}
