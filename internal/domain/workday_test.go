package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var day = time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC) // Monday

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func workingRecord(t *testing.T) AttendanceRecord {
	t.Helper()
	rec, err := ClockIn(AttendanceRecord{ID: "rec-1", UserID: "user-1", Date: DateOf(day)}, at(8, 0), &Location{Lat: 4.6, Lon: -74.1}, "android")
	require.NoError(t, err)
	return rec
}

func TestStateOfDerivesFromFields(t *testing.T) {
	rec := AttendanceRecord{}
	require.Equal(t, StateNotStarted, StateOf(rec))

	rec.Entry = &Entry{Time: at(8, 0)}
	require.Equal(t, StateWorking, StateOf(rec))

	rec.Breaks = []Interval{{Start: at(10, 0)}}
	require.Equal(t, StateOnBreak, rec.State())

	end := at(10, 15)
	rec.Breaks[0].End = &end
	rec.Lunch = &Interval{Start: at(12, 0)}
	require.Equal(t, StateAtLunch, StateOf(rec))

	lunchEnd := at(13, 0)
	rec.Lunch.End = &lunchEnd
	rec.Exit = &Exit{Time: at(17, 0)}
	require.Equal(t, StateFinished, StateOf(rec))
}

func TestClockInOnlyFromNotStarted(t *testing.T) {
	rec := workingRecord(t)
	require.NotNil(t, rec.Entry)
	require.Equal(t, "android", rec.Entry.Device)
	require.Equal(t, 4.6, rec.Entry.Location.Lat)

	_, err := ClockIn(rec, at(9, 0), nil, "")
	require.True(t, IsInvalidTransition(err))

	onBreak, err := StartBreak(rec, at(10, 0))
	require.NoError(t, err)
	_, err = ClockIn(onBreak, at(10, 5), nil, "")
	require.True(t, IsInvalidTransition(err))

	finished, err := ClockOut(rec, at(17, 0))
	require.NoError(t, err)
	_, err = ClockIn(finished, at(18, 0), nil, "")
	var transitionErr *InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, StateFinished, transitionErr.From)
	require.Equal(t, TransitionClockIn, transitionErr.Transition)
}

func TestStartBreakTwiceRejected(t *testing.T) {
	rec, err := StartBreak(workingRecord(t), at(10, 0))
	require.NoError(t, err)

	_, err = StartBreak(rec, at(10, 5))
	require.True(t, IsInvalidTransition(err))
}

func TestOnlyOneInterruptionAtATime(t *testing.T) {
	onBreak, err := StartBreak(workingRecord(t), at(10, 0))
	require.NoError(t, err)
	_, err = StartLunch(onBreak, at(10, 5))
	require.True(t, IsInvalidTransition(err))

	atLunch, err := StartLunch(workingRecord(t), at(12, 0))
	require.NoError(t, err)
	_, err = StartBreak(atLunch, at(12, 5))
	require.True(t, IsInvalidTransition(err))
}

func TestClockOutRejectedWhileInterrupted(t *testing.T) {
	onBreak, err := StartBreak(workingRecord(t), at(10, 0))
	require.NoError(t, err)
	_, err = ClockOut(onBreak, at(17, 0))
	require.True(t, IsInvalidTransition(err))

	atLunch, err := StartLunch(workingRecord(t), at(12, 0))
	require.NoError(t, err)
	_, err = ClockOut(atLunch, at(17, 0))
	require.True(t, IsInvalidTransition(err))
}

func TestEndRequiresMatchingOpenInterruption(t *testing.T) {
	rec := workingRecord(t)
	_, err := EndBreak(rec, at(9, 0))
	require.True(t, IsInvalidTransition(err))
	_, err = EndLunch(rec, at(9, 0))
	require.True(t, IsInvalidTransition(err))

	onBreak, err := StartBreak(rec, at(10, 0))
	require.NoError(t, err)
	_, err = EndLunch(onBreak, at(10, 10))
	require.True(t, IsInvalidTransition(err))
}

func TestFullDayLifecycle(t *testing.T) {
	rec := workingRecord(t)
	steps := []Command{
		{Transition: TransitionBreakStart, At: at(10, 0)},
		{Transition: TransitionBreakEnd, At: at(10, 15)},
		{Transition: TransitionLunchStart, At: at(12, 0)},
		{Transition: TransitionLunchEnd, At: at(13, 0)},
		{Transition: TransitionBreakStart, At: at(15, 0)},
		{Transition: TransitionBreakEnd, At: at(15, 15)},
		{Transition: TransitionClockOut, At: at(17, 30)},
	}
	var err error
	for _, step := range steps {
		rec, err = Apply(rec, step)
		require.NoError(t, err, "step %s", step.Transition)
	}

	require.Equal(t, StateFinished, rec.State())
	require.Len(t, rec.Breaks, 2)
	require.NoError(t, Validate(rec))

	worked, ok := NetWorked(rec)
	require.True(t, ok)
	require.Equal(t, 8*time.Hour, worked)
}

func TestSecondLunchRejected(t *testing.T) {
	rec, err := StartLunch(workingRecord(t), at(12, 0))
	require.NoError(t, err)
	rec, err = EndLunch(rec, at(13, 0))
	require.NoError(t, err)

	_, err = StartLunch(rec, at(14, 0))
	var transitionErr *InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, "lunch already taken", transitionErr.Reason)
}

func TestTimestampsMustStrictlyIncrease(t *testing.T) {
	rec := workingRecord(t)

	_, err := StartBreak(rec, at(8, 0))
	require.True(t, IsTemporalOrdering(err))

	_, err = StartBreak(rec, at(7, 59))
	var orderErr *TemporalOrderingError
	require.ErrorAs(t, err, &orderErr)
	require.Equal(t, at(8, 0), orderErr.Previous)

	onBreak, err := StartBreak(rec, at(10, 0))
	require.NoError(t, err)
	_, err = EndBreak(onBreak, at(9, 30))
	require.True(t, IsTemporalOrdering(err))

	_, err = ClockOut(rec, at(7, 0))
	require.True(t, IsTemporalOrdering(err))
}

func TestTransitionsDoNotMutateInput(t *testing.T) {
	rec := workingRecord(t)
	onBreak, err := StartBreak(rec, at(10, 0))
	require.NoError(t, err)
	require.Empty(t, rec.Breaks)

	closed, err := EndBreak(onBreak, at(10, 10))
	require.NoError(t, err)
	require.Nil(t, onBreak.Breaks[0].End)
	require.NotNil(t, closed.Breaks[0].End)
}

func TestMissingTimestampRejected(t *testing.T) {
	_, err := ClockIn(AttendanceRecord{}, time.Time{}, nil, "")
	require.ErrorIs(t, err, ErrMissingTimestamp)
}

func TestValidateDetectsBrokenRecords(t *testing.T) {
	breakEnd := at(10, 15)
	cases := map[string]AttendanceRecord{
		"events without entry": {Breaks: []Interval{{Start: at(10, 0)}}},
		"break before entry": {
			Entry:  &Entry{Time: at(8, 0)},
			Breaks: []Interval{{Start: at(7, 0), End: &breakEnd}},
		},
		"break and lunch open": {
			Entry:  &Entry{Time: at(8, 0)},
			Breaks: []Interval{{Start: at(10, 0)}},
			Lunch:  &Interval{Start: at(12, 0)},
		},
		"exit with open break": {
			Entry:  &Entry{Time: at(8, 0)},
			Breaks: []Interval{{Start: at(10, 0)}},
			Exit:   &Exit{Time: at(17, 0)},
		},
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, Validate(rec), ErrInvalidRecord)
		})
	}
}

func TestParseTransition(t *testing.T) {
	tr, err := ParseTransition("lunch_start")
	require.NoError(t, err)
	require.Equal(t, TransitionLunchStart, tr)

	_, err = ParseTransition("nap_start")
	require.Error(t, err)
}
