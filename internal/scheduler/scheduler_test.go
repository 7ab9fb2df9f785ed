package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gym-calendar-agent/internal/config"
	"gym-calendar-agent/internal/metrics"
	"gym-calendar-agent/internal/model"
	"gym-calendar-agent/internal/pipeline"
)

var testMetrics = metrics.NewMetrics()

type emptyFetcher struct{}

func (emptyFetcher) FetchUnprocessed(ctx context.Context, query string, maxCount int64) ([]model.EmailMessage, error) {
	return nil, nil
}
func (emptyFetcher) MarkProcessed(ctx context.Context, messageID string) error { return nil }

func (emptyFetcher) Close() error { return nil }

type nopClassifier struct{}

func (nopClassifier) Classify(ctx context.Context, email model.EmailMessage) (model.Classification, error) {
	return model.Classification{Type: model.EmailTypeOther}, nil
}

type nopExtractor struct{}

func (nopExtractor) Extract(ctx context.Context, email model.EmailMessage, emailType model.EmailType) (*model.ClassSession, error) {
	return nil, nil
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(ctx context.Context, classification model.Classification, session *model.ClassSession) (model.Action, error) {
	return model.ActionSkippedIrrelevant, nil
}

type nopLedger struct{}

func (nopLedger) Has(messageID string) (bool, error) { return false, nil }

func (nopLedger) Record(result model.ProcessingResult) error { return nil }

func (nopLedger) LogAttempt(result model.ProcessingResult) error { return nil }

func (nopLedger) RecentLogs(limit int) ([]model.ProcessingLog, error) { return nil, nil }

func newTestScheduler() *Scheduler {
	p := pipeline.New(
		emptyFetcher{},
		nopClassifier{},
		nopExtractor{},
		nopDispatcher{},
		nopLedger{},
		testMetrics,
		config.AgentConfig{ConfidenceThreshold: 0.7, MaxEmailsPerCheck: 10},
	)
	return NewScheduler(&config.SchedulerConfig{IntervalMinutes: 5}, p)
}

func TestSchedulerStartStop(t *testing.T) {
	s := newTestScheduler()

	assert.False(t, s.IsRunning())
	assert.True(t, s.GetNextRun().IsZero())

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.False(t, s.GetNextRun().IsZero())

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.True(t, s.GetNextRun().IsZero())
}

func TestSchedulerDoubleStart(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Error(t, s.Start())
}

func TestSchedulerStopWhenNotRunning(t *testing.T) {
	s := newTestScheduler()

	assert.NoError(t, s.Stop())
}

func TestSchedulerRestart(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.Start())
	require.NoError(t, s.Stop())

	// Stop cancels the scheduler context; Start must replace it so cycles
	// after a restart are not born cancelled.
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.True(t, s.IsRunning())
	assert.NoError(t, s.ctx.Err())
}

func TestSchedulerRunOnce(t *testing.T) {
	s := newTestScheduler()

	summary, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Zero(t, summary.Fetched)
}
