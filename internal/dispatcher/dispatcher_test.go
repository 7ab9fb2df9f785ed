package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gym-calendar-agent/internal/calendar"
	"gym-calendar-agent/internal/model"
)

// fakeCalendar keeps events in a map keyed by identity key.
type fakeCalendar struct {
	events map[string]model.ClassSession
	failed bool
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{events: make(map[string]model.ClassSession)}
}

func (f *fakeCalendar) Upsert(ctx context.Context, session model.ClassSession, opts calendar.UpsertOptions) (calendar.UpsertOutcome, error) {
	if f.failed {
		return "", errors.New("calendar unavailable")
	}
	key := session.Key()
	if _, ok := f.events[key]; !ok {
		f.events[key] = session
		return calendar.OutcomeCreated, nil
	}
	if !opts.UpdateExisting {
		return calendar.OutcomeUnchanged, nil
	}
	f.events[key] = session
	return calendar.OutcomeUpdated, nil
}

func (f *fakeCalendar) Delete(ctx context.Context, key string) (bool, error) {
	if f.failed {
		return false, errors.New("calendar unavailable")
	}
	if _, ok := f.events[key]; !ok {
		return false, nil
	}
	delete(f.events, key)
	return true, nil
}

func session(name string) *model.ClassSession {
	start := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	return &model.ClassSession{
		ClassName: name,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	}
}

func classified(t model.EmailType) model.Classification {
	return model.Classification{Type: t, Confidence: 0.9}
}

func TestDispatchRegistrationCreatesOnce(t *testing.T) {
	cal := newFakeCalendar()
	d := New(cal)
	s := session("Boxing Basics")

	action, err := d.Dispatch(context.Background(), classified(model.EmailTypeRegistrationForm), s)
	require.NoError(t, err)
	assert.Equal(t, model.ActionCreated, action)
	assert.Len(t, cal.events, 1)

	// Applying the same session again must not produce a second event, and
	// the reported outcome must reflect that nothing was written.
	action, err = d.Dispatch(context.Background(), classified(model.EmailTypeRegistrationForm), s)
	require.NoError(t, err)
	assert.Equal(t, model.ActionUnchanged, action)
	assert.Len(t, cal.events, 1)
}

func TestDispatchConfirmationUpdatesSameEvent(t *testing.T) {
	cal := newFakeCalendar()
	d := New(cal)

	_, err := d.Dispatch(context.Background(), classified(model.EmailTypeRegistrationForm), session("Boxing Basics"))
	require.NoError(t, err)

	confirmed := session("Boxing Basics")
	confirmed.Instructor = "Maria"
	action, err := d.Dispatch(context.Background(), classified(model.EmailTypeConfirmation), confirmed)
	require.NoError(t, err)
	assert.Equal(t, model.ActionUpdated, action)
	require.Len(t, cal.events, 1)
	assert.Equal(t, "Maria", cal.events[confirmed.Key()].Instructor)
}

func TestDispatchCancellationDeletesEvent(t *testing.T) {
	cal := newFakeCalendar()
	d := New(cal)
	s := session("Boxing Basics")

	_, err := d.Dispatch(context.Background(), classified(model.EmailTypeRegistrationForm), s)
	require.NoError(t, err)

	action, err := d.Dispatch(context.Background(), classified(model.EmailTypeCancellation), s)
	require.NoError(t, err)
	assert.Equal(t, model.ActionCancelled, action)
	assert.Empty(t, cal.events)

	// A second cancellation for the already-deleted key is a no-op, not a failure.
	action, err = d.Dispatch(context.Background(), classified(model.EmailTypeCancellation), s)
	require.NoError(t, err)
	assert.Equal(t, model.ActionCancelled, action)
}

func TestDispatchWaitlistUpserts(t *testing.T) {
	cal := newFakeCalendar()
	d := New(cal)

	action, err := d.Dispatch(context.Background(), classified(model.EmailTypeWaitlist), session("Kickboxing"))
	require.NoError(t, err)
	assert.Equal(t, model.ActionCreated, action)
	assert.Len(t, cal.events, 1)
}

func TestDispatchOtherSkips(t *testing.T) {
	cal := newFakeCalendar()
	d := New(cal)

	action, err := d.Dispatch(context.Background(), classified(model.EmailTypeOther), nil)
	require.NoError(t, err)
	assert.Equal(t, model.ActionSkippedIrrelevant, action)
	assert.Empty(t, cal.events)
}

func TestDispatchMissingSessionFails(t *testing.T) {
	d := New(newFakeCalendar())

	action, err := d.Dispatch(context.Background(), classified(model.EmailTypeConfirmation), nil)
	require.Error(t, err)
	assert.Equal(t, model.ActionFailed, action)
}

func TestDispatchCalendarFailure(t *testing.T) {
	cal := newFakeCalendar()
	cal.failed = true
	d := New(cal)

	action, err := d.Dispatch(context.Background(), classified(model.EmailTypeConfirmation), session("Boxing Basics"))
	require.Error(t, err)
	assert.Equal(t, model.ActionFailed, action)
}

func TestDispatchUnrelatedClassesIndependent(t *testing.T) {
	cal := newFakeCalendar()
	d := New(cal)

	a := session("Boxing Basics")
	b := session("Kickboxing")

	// A then B.
	_, err := d.Dispatch(context.Background(), classified(model.EmailTypeRegistrationForm), a)
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), classified(model.EmailTypeRegistrationForm), b)
	require.NoError(t, err)
	forward := len(cal.events)

	// B then A on a fresh calendar yields the same state.
	cal2 := newFakeCalendar()
	d2 := New(cal2)
	_, err = d2.Dispatch(context.Background(), classified(model.EmailTypeRegistrationForm), b)
	require.NoError(t, err)
	_, err = d2.Dispatch(context.Background(), classified(model.EmailTypeRegistrationForm), a)
	require.NoError(t, err)

	assert.Equal(t, forward, len(cal2.events))
	assert.Contains(t, cal2.events, a.Key())
	assert.Contains(t, cal2.events, b.Key())
}
