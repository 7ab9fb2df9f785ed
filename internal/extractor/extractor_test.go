package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gym-calendar-agent/internal/model"
)

type fakeClient struct {
	response string
	err      error
	calls    int
}

func (f *fakeClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func newTestExtractor(t *testing.T, response string) *Extractor {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return New(&fakeClient{response: response}, loc, 60*time.Minute, 3)
}

func testEmail() model.EmailMessage {
	return model.EmailMessage{
		ID:      "msg-42",
		Subject: "Boxing Basics confirmation",
		Body:    "See you Saturday!",
	}
}

func TestExtractFullSession(t *testing.T) {
	e := newTestExtractor(t, `{
		"class_name": "Boxing Basics",
		"date": "2025-03-01",
		"time": "18:00",
		"instructor": "Maria",
		"location": "Main Gym",
		"class_type": "boxing",
		"difficulty": "beginner",
		"duration_minutes": 45,
		"equipment_needed": ["gloves", "wraps"],
		"notes": "Arrive early"
	}`)

	session, err := e.Extract(context.Background(), testEmail(), model.EmailTypeConfirmation)
	require.NoError(t, err)

	assert.Equal(t, "Boxing Basics", session.ClassName)
	assert.Equal(t, 2025, session.StartTime.Year())
	assert.Equal(t, time.March, session.StartTime.Month())
	assert.Equal(t, 18, session.StartTime.Hour())
	assert.Equal(t, 45*time.Minute, session.EndTime.Sub(session.StartTime))
	assert.Equal(t, "Maria", session.Instructor)
	assert.Equal(t, []string{"gloves", "wraps"}, session.Equipment)
	assert.Equal(t, "msg-42", session.SourceMessageID)
}

func TestExtractDefaultsDuration(t *testing.T) {
	e := newTestExtractor(t, `{"class_name": "Kickboxing", "date": "2025-03-01", "time": "18:00"}`)

	session, err := e.Extract(context.Background(), testEmail(), model.EmailTypeRegistrationForm)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Minute, session.EndTime.Sub(session.StartTime))
}

func TestExtractOptionalFieldsStayEmpty(t *testing.T) {
	e := newTestExtractor(t, `{
		"class_name": "Kickboxing",
		"date": "2025-03-01",
		"time": "18:00",
		"instructor": null,
		"location": null,
		"equipment_needed": null
	}`)

	session, err := e.Extract(context.Background(), testEmail(), model.EmailTypeConfirmation)
	require.NoError(t, err)
	assert.Empty(t, session.Instructor)
	assert.Empty(t, session.Location)
	assert.Empty(t, session.Equipment)
}

func TestExtractTwelveHourTime(t *testing.T) {
	e := newTestExtractor(t, `{"class_name": "Boxing", "date": "2025-03-01", "time": "6:15pm"}`)

	session, err := e.Extract(context.Background(), testEmail(), model.EmailTypeConfirmation)
	require.NoError(t, err)
	assert.Equal(t, 18, session.StartTime.Hour())
	assert.Equal(t, 15, session.StartTime.Minute())
}

func TestExtractMissingStartTimeFailsHard(t *testing.T) {
	e := newTestExtractor(t, `{"class_name": "Boxing Basics", "date": "2025-03-01", "time": null}`)

	_, err := e.Extract(context.Background(), testEmail(), model.EmailTypeConfirmation)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestExtractMissingClassNameFailsHard(t *testing.T) {
	e := newTestExtractor(t, `{"class_name": "", "date": "2025-03-01", "time": "18:00"}`)

	_, err := e.Extract(context.Background(), testEmail(), model.EmailTypeConfirmation)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestExtractInsufficientDataSignal(t *testing.T) {
	e := newTestExtractor(t, `{"insufficient_data": true}`)

	_, err := e.Extract(context.Background(), testEmail(), model.EmailTypeConfirmation)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestExtractUnparseableDateFailsHard(t *testing.T) {
	e := newTestExtractor(t, `{"class_name": "Boxing", "date": "next Friday", "time": "18:00"}`)

	_, err := e.Extract(context.Background(), testEmail(), model.EmailTypeConfirmation)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestExtractUnparseableResponseFails(t *testing.T) {
	e := newTestExtractor(t, "the class is on Friday")

	_, err := e.Extract(context.Background(), testEmail(), model.EmailTypeConfirmation)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientData)
}

func TestExtractNonTransientErrorNotRetried(t *testing.T) {
	client := &fakeClient{err: errors.New("bad request")}
	loc, err := time.LoadLocation("UTC")
	require.NoError(t, err)
	e := New(client, loc, time.Hour, 3)

	_, err = e.Extract(context.Background(), testEmail(), model.EmailTypeConfirmation)
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)
}
