// Package dispatcher maps classification types to calendar mutations.
package dispatcher

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"gym-calendar-agent/internal/calendar"
	"gym-calendar-agent/internal/model"
)

// Dispatcher is the state machine turning a classification plus extracted
// session into an idempotent calendar mutation.
type Dispatcher struct {
	cal calendar.Gateway
}

// New creates a new dispatcher
func New(cal calendar.Gateway) *Dispatcher {
	return &Dispatcher{cal: cal}
}

// Dispatch applies the calendar mutation for the classification type and
// returns the action taken. The session must be present for every type except
// other; callers gate on that before dispatching.
func (d *Dispatcher) Dispatch(ctx context.Context, classification model.Classification, session *model.ClassSession) (model.Action, error) {
	if classification.Type == model.EmailTypeOther {
		return model.ActionSkippedIrrelevant, nil
	}

	if session == nil {
		return model.ActionFailed, fmt.Errorf("no session extracted for %s email", classification.Type)
	}

	switch classification.Type {
	case model.EmailTypeRegistrationForm:
		return d.upsert(ctx, *session, calendar.UpsertOptions{})

	case model.EmailTypeConfirmation:
		return d.upsert(ctx, *session, calendar.UpsertOptions{UpdateExisting: true})

	case model.EmailTypeWaitlist:
		return d.upsert(ctx, *session, calendar.UpsertOptions{Waitlisted: true, UpdateExisting: true})

	case model.EmailTypeCancellation:
		deleted, err := d.cal.Delete(ctx, session.Key())
		if err != nil {
			return model.ActionFailed, err
		}
		if !deleted {
			logrus.Infof("No event to cancel for %q", session.Key())
		}
		return model.ActionCancelled, nil

	default:
		return model.ActionFailed, fmt.Errorf("unhandled email type %q", classification.Type)
	}
}

func (d *Dispatcher) upsert(ctx context.Context, session model.ClassSession, opts calendar.UpsertOptions) (model.Action, error) {
	outcome, err := d.cal.Upsert(ctx, session, opts)
	if err != nil {
		return model.ActionFailed, err
	}
	switch outcome {
	case calendar.OutcomeCreated:
		return model.ActionCreated, nil
	case calendar.OutcomeUpdated:
		return model.ActionUpdated, nil
	default:
		return model.ActionUnchanged, nil
	}
}
