// Package pipeline ties the mailbox gateway, classifier, extractor,
// dispatcher and ledger together for one polling cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gym-calendar-agent/internal/config"
	"gym-calendar-agent/internal/fetcher"
	"gym-calendar-agent/internal/ledger"
	"gym-calendar-agent/internal/metrics"
	"gym-calendar-agent/internal/model"
)

// ErrCycleInProgress is returned when a cycle is triggered while a previous
// one is still running. The trigger is a no-op, never queued.
var ErrCycleInProgress = errors.New("a processing cycle is already in progress")

// Classifier turns a raw email into a typed classification.
type Classifier interface {
	Classify(ctx context.Context, email model.EmailMessage) (model.Classification, error)
}

// Extractor turns a classified email into structured class-session data.
type Extractor interface {
	Extract(ctx context.Context, email model.EmailMessage, emailType model.EmailType) (*model.ClassSession, error)
}

// Dispatcher applies the calendar mutation for a classification.
type Dispatcher interface {
	Dispatch(ctx context.Context, classification model.Classification, session *model.ClassSession) (model.Action, error)
}

// Pipeline runs one processing cycle at a time: fetch unprocessed messages,
// classify, gate on confidence, extract, dispatch, then mark processed and
// record — strictly in that order, so an interrupted cycle simply re-fetches
// the same unmarked messages next time.
type Pipeline struct {
	fetcher    fetcher.Fetcher
	classifier Classifier
	extractor  Extractor
	dispatcher Dispatcher
	ledger     ledger.Ledger
	metrics    *metrics.Metrics
	cfg        config.AgentConfig

	mu sync.Mutex
}

// New creates a new pipeline
func New(f fetcher.Fetcher, c Classifier, e Extractor, d Dispatcher, l ledger.Ledger, m *metrics.Metrics, cfg config.AgentConfig) *Pipeline {
	return &Pipeline{
		fetcher:    f,
		classifier: c,
		extractor:  e,
		dispatcher: d,
		ledger:     l,
		metrics:    m,
		cfg:        cfg,
	}
}

// RunCycle executes one processing cycle and returns its summary. A fetch
// failure aborts the whole cycle; a single message's failure does not.
func (p *Pipeline) RunCycle(ctx context.Context) (*model.CycleSummary, error) {
	if !p.mu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer p.mu.Unlock()

	p.metrics.CycleCount.Inc()
	summary := model.NewCycleSummary()
	startTime := time.Now()
	defer func() {
		p.metrics.CycleDuration.Observe(time.Since(startTime).Seconds())
	}()

	emails, err := p.fetcher.FetchUnprocessed(ctx, p.cfg.MailboxQuery, int64(p.cfg.MaxEmailsPerCheck))
	if err != nil {
		p.metrics.CycleErrors.Inc()
		return nil, fmt.Errorf("failed to fetch unprocessed emails: %w", err)
	}

	summary.Fetched = len(emails)
	p.metrics.EmailsFetched.Add(float64(len(emails)))
	logrus.Infof("Fetched %d unprocessed emails", len(emails))

	for _, email := range emails {
		if ctx.Err() != nil {
			logrus.Warnf("Cycle cancelled, %d messages left unprocessed", summary.Fetched-totalCount(summary))
			break
		}

		// The provider-side marker filter is the authoritative guard; the
		// ledger check only catches a marker that failed to stick.
		has, err := p.ledger.Has(email.ID)
		if err != nil {
			logrus.Errorf("Ledger check failed for message %s: %v", email.ID, err)
		} else if has {
			logrus.Warnf("Message %s already in ledger but fetched again, re-marking", email.ID)
			if err := p.fetcher.MarkProcessed(ctx, email.ID); err != nil {
				logrus.Errorf("Failed to re-mark message %s: %v", email.ID, err)
			}
			continue
		}

		result := p.processMessage(ctx, email)
		summary.Add(result)
		p.metrics.Outcomes.WithLabelValues(string(result.Action)).Inc()

		if err := p.ledger.LogAttempt(result); err != nil {
			logrus.Errorf("Failed to log attempt for message %s: %v", email.ID, err)
		}
	}

	summary.FinishedAt = time.Now()
	logrus.Infof("Processing cycle finished: %d fetched, %v", summary.Fetched, summary.Counts)
	return summary, nil
}

// processMessage runs one email through the pipeline to a single result.
// Messages that fail stay unmarked so the next cycle retries them; messages
// that reach a terminal outcome are marked on the provider first and recorded
// in the ledger second.
func (p *Pipeline) processMessage(ctx context.Context, email model.EmailMessage) model.ProcessingResult {
	logrus.Infof("Processing email %s: %s", email.ID, email.Subject)

	p.metrics.LLMCalls.Inc()
	classification, err := p.classifier.Classify(ctx, email)
	if err != nil {
		p.metrics.LLMFailures.Inc()
		return model.ProcessingResult{
			MessageID: email.ID,
			Action:    model.ActionFailed,
			Err:       fmt.Errorf("classification: %w", err),
		}
	}

	logrus.Infof("Email %s classified as %s (confidence %.2f)", email.ID, classification.Type, classification.Confidence)

	result := model.ProcessingResult{
		MessageID:      email.ID,
		Classification: classification,
	}

	if classification.Type == model.EmailTypeOther {
		result.Action = model.ActionSkippedIrrelevant
		return p.finalize(ctx, result)
	}

	// Boundary inclusive: confidence exactly at the threshold proceeds.
	if classification.Confidence < p.cfg.ConfidenceThreshold {
		logrus.Warnf("Email %s below confidence threshold (%.2f < %.2f): %s",
			email.ID, classification.Confidence, p.cfg.ConfidenceThreshold, classification.Reasoning)
		result.Action = model.ActionSkippedLowConf
		return p.finalize(ctx, result)
	}

	p.metrics.LLMCalls.Inc()
	session, err := p.extractor.Extract(ctx, email, classification.Type)
	if err != nil {
		p.metrics.LLMFailures.Inc()
		result.Action = model.ActionFailed
		result.Err = fmt.Errorf("extraction: %w", err)
		return result
	}
	result.Session = session

	p.metrics.CalendarCalls.Inc()
	action, err := p.dispatcher.Dispatch(ctx, classification, session)
	if err != nil {
		result.Action = model.ActionFailed
		result.Err = fmt.Errorf("dispatch: %w", err)
		return result
	}
	result.Action = action

	return p.finalize(ctx, result)
}

// finalize marks the message processed on the provider and appends the ledger
// entry. Marking must succeed before recording; if it fails the message stays
// unmarked and the result turns into a failure so the next cycle retries it.
// The action already applied is idempotent, so the retry is safe.
func (p *Pipeline) finalize(ctx context.Context, result model.ProcessingResult) model.ProcessingResult {
	if err := p.fetcher.MarkProcessed(ctx, result.MessageID); err != nil {
		logrus.Errorf("Failed to mark message %s as processed: %v", result.MessageID, err)
		result.Action = model.ActionFailed
		result.Err = fmt.Errorf("mark processed: %w", err)
		return result
	}

	if err := p.ledger.Record(result); err != nil {
		// The provider marker already guards against refetching; a missing
		// ledger row is tolerated.
		logrus.Errorf("Failed to record ledger entry for message %s: %v", result.MessageID, err)
	}

	return result
}

func totalCount(s *model.CycleSummary) int {
	total := 0
	for _, n := range s.Counts {
		total += n
	}
	return total
}
