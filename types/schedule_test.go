package types

import (
	"testing"
	"time"

	"github.com/RezaEskandarii/recurfire/custom_errors"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		sched   Schedule
		wantErr error
	}{
		{"minimum interval", Interval(1000), nil},
		{"one hour", Every(time.Hour), nil},
		{"just below minimum", Interval(999), custom_errors.ErrInvalidInterval},
		{"zero interval", Interval(0), custom_errors.ErrInvalidInterval},
		{"negative interval", Interval(-5000), custom_errors.ErrInvalidInterval},
		{"sub-second duration", Every(500 * time.Millisecond), custom_errors.ErrInvalidInterval},
		{"valid cron", Cron("0 0 * * *"), nil},
		{"invalid cron", Cron("0 0 * *"), custom_errors.ErrInvalidCronSpec},
		{"empty cron", Cron(""), custom_errors.ErrInvalidCronSpec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sched.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestSchedule_Validate_UnknownKind(t *testing.T) {
	err := Schedule{Kind: "weekly"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown schedule kind")
}

func TestSchedule_NextFireTime_IntervalDoesNotDrift(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	sched := Interval(1500)

	anchor := t0
	for k := 1; k <= 10; k++ {
		next, err := sched.NextFireTime(anchor)
		require.NoError(t, err)
		assert.Equal(t, t0.Add(time.Duration(k)*1500*time.Millisecond), next)
		anchor = next
	}
}

func TestSchedule_NextFireTime_Cron(t *testing.T) {
	from := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	next, err := Cron("0 0 * * *").NextFireTime(from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), next)
}

func TestSchedule_Period(t *testing.T) {
	assert.Equal(t, 2*time.Second, Interval(2000).Period())
	assert.Equal(t, time.Duration(0), Cron("@hourly").Period())
}

func TestSchedule_String(t *testing.T) {
	assert.Equal(t, "every 1m0s", Interval(60000).String())
	assert.Equal(t, `cron "@daily"`, Cron("@daily").String())
}

func TestRecurringJob_DisplayName(t *testing.T) {
	name := "nightly-report"
	assert.Equal(t, "nightly-report", (&RecurringJob{ID: 3, Name: &name}).DisplayName())
	assert.Equal(t, "#3", (&RecurringJob{ID: 3}).DisplayName())
}

func TestEnqueuedJob_Args(t *testing.T) {
	job := EnqueuedJob{Payload: []byte(`{"job_id": 12, "to": "ops"}`)}
	args, err := job.Args()
	require.NoError(t, err)
	assert.Equal(t, float64(12), args["job_id"])
	assert.Equal(t, "ops", args["to"])

	empty := EnqueuedJob{}
	args, err = empty.Args()
	require.NoError(t, err)
	assert.Empty(t, args)

	bad := EnqueuedJob{Payload: []byte(`[1,2]`)}
	_, err = bad.Args()
	assert.Error(t, err)
}
