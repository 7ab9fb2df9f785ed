package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"gym-calendar-agent/internal/config"
	"gym-calendar-agent/internal/model"
)

// keyProperty is the private extended property carrying the identity key.
const keyProperty = "classKey"

// UpsertOutcome describes what an upsert actually did.
type UpsertOutcome string

const (
	OutcomeCreated   UpsertOutcome = "created"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged"
)

// UpsertOptions control upsert behavior for an existing event.
type UpsertOptions struct {
	// Waitlisted tags the event with a waitlist marker.
	Waitlisted bool
	// UpdateExisting overwrites details of an already-existing event; when
	// false an existing event is left untouched.
	UpdateExisting bool
}

// Gateway is the calendar provider interface. Both operations are idempotent
// by construction: at most one event exists per identity key, and deleting an
// absent key is a no-op.
type Gateway interface {
	Upsert(ctx context.Context, session model.ClassSession, opts UpsertOptions) (UpsertOutcome, error)
	Delete(ctx context.Context, key string) (bool, error)
}

// GoogleGateway implements Gateway against the Google Calendar API.
type GoogleGateway struct {
	service    *calendar.Service
	calendarID string
	timezone   string
	gymName    string
	userEmail  string
}

// NewGoogleGateway creates a Google Calendar gateway using the same
// refresh-token credentials as the Gmail fetcher.
func NewGoogleGateway(gmailCfg *config.GmailConfig, calCfg *config.CalendarConfig) (*GoogleGateway, error) {
	ctx := context.Background()

	service, err := calendar.NewService(ctx, option.WithHTTPClient(newOAuthClient(gmailCfg)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}

	return &GoogleGateway{
		service:    service,
		calendarID: calCfg.CalendarID,
		timezone:   calCfg.Timezone,
		gymName:    calCfg.GymName,
		userEmail:  gmailCfg.UserEmail,
	}, nil
}

// newOAuthClient builds the HTTP client backing the Calendar service. The
// client timeout bounds every API call, so a stalled connection fails the
// cycle instead of suspending it until restart.
func newOAuthClient(cfg *config.GmailConfig) *http.Client {
	ctx := context.Background()

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{calendar.CalendarScope},
		Endpoint:     google.Endpoint,
	}

	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	client := oauth2.NewClient(ctx, oauth2Config.TokenSource(ctx, token))
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client.Timeout = timeout
	return client
}

// Upsert creates or updates the event identified by the session's key.
func (g *GoogleGateway) Upsert(ctx context.Context, session model.ClassSession, opts UpsertOptions) (UpsertOutcome, error) {
	key := session.Key()

	existing, err := g.findByKey(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to look up event for key %q: %w", key, err)
	}

	if existing == nil {
		event := g.buildEvent(session, opts.Waitlisted)
		if err := g.withRetry(ctx, "insert", func() error {
			_, err := g.service.Events.Insert(g.calendarID, event).Context(ctx).Do()
			return err
		}); err != nil {
			return "", fmt.Errorf("failed to create event for key %q: %w", key, err)
		}
		logrus.Infof("Created calendar event for %q", key)
		return OutcomeCreated, nil
	}

	if !opts.UpdateExisting {
		logrus.Debugf("Calendar event for %q already exists, leaving unchanged", key)
		return OutcomeUnchanged, nil
	}

	updated := g.buildEvent(session, opts.Waitlisted)
	if sameEventDetails(existing, updated) {
		return OutcomeUnchanged, nil
	}

	if err := g.withRetry(ctx, "update", func() error {
		_, err := g.service.Events.Update(g.calendarID, existing.Id, updated).Context(ctx).Do()
		return err
	}); err != nil {
		return "", fmt.Errorf("failed to update event for key %q: %w", key, err)
	}
	logrus.Infof("Updated calendar event for %q", key)
	return OutcomeUpdated, nil
}

// Delete removes the event identified by the key. A missing event is a no-op,
// not an error, so repeated cancellations stay idempotent.
func (g *GoogleGateway) Delete(ctx context.Context, key string) (bool, error) {
	existing, err := g.findByKey(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to look up event for key %q: %w", key, err)
	}
	if existing == nil {
		logrus.Debugf("No calendar event for %q, nothing to delete", key)
		return false, nil
	}

	err = g.withRetry(ctx, "delete", func() error {
		return g.service.Events.Delete(g.calendarID, existing.Id).Context(ctx).Do()
	})
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete event for key %q: %w", key, err)
	}

	logrus.Infof("Deleted calendar event for %q", key)
	return true, nil
}

func (g *GoogleGateway) findByKey(ctx context.Context, key string) (*calendar.Event, error) {
	var events *calendar.Events
	err := g.withRetry(ctx, "list", func() error {
		var err error
		events, err = g.service.Events.List(g.calendarID).
			PrivateExtendedProperty(keyProperty + "=" + key).
			SingleEvents(true).
			MaxResults(2).
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(events.Items) == 0 {
		return nil, nil
	}
	if len(events.Items) > 1 {
		logrus.Warnf("Found %d events for key %q, using the first", len(events.Items), key)
	}
	return events.Items[0], nil
}

func (g *GoogleGateway) buildEvent(session model.ClassSession, waitlisted bool) *calendar.Event {
	summary := fmt.Sprintf("%s - %s", session.ClassName, g.gymName)
	if waitlisted {
		summary = "[Waitlist] " + summary
	}

	location := session.Location
	if location == "" {
		location = g.gymName
	}

	private := map[string]string{keyProperty: session.Key()}
	if waitlisted {
		private["waitlisted"] = "true"
	}

	event := &calendar.Event{
		Summary:     summary,
		Description: buildDescription(session),
		Location:    location,
		Start: &calendar.EventDateTime{
			DateTime: session.StartTime.Format(time.RFC3339),
			TimeZone: g.timezone,
		},
		End: &calendar.EventDateTime{
			DateTime: session.EndTime.Format(time.RFC3339),
			TimeZone: g.timezone,
		},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: private,
		},
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 30},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}

	if g.userEmail != "" {
		event.Attendees = []*calendar.EventAttendee{
			{Email: g.userEmail, ResponseStatus: "accepted"},
		}
	}

	return event
}

func buildDescription(session model.ClassSession) string {
	parts := []string{"Gym class registration confirmed.", ""}

	if session.Instructor != "" {
		parts = append(parts, fmt.Sprintf("Instructor: %s", session.Instructor))
	}
	if session.ClassType != "" {
		parts = append(parts, fmt.Sprintf("Class Type: %s", session.ClassType))
	}
	if session.Difficulty != "" {
		parts = append(parts, fmt.Sprintf("Difficulty: %s", session.Difficulty))
	}
	if len(session.Equipment) > 0 {
		parts = append(parts, fmt.Sprintf("Equipment: %s", strings.Join(session.Equipment, ", ")))
	}
	if session.Notes != "" {
		parts = append(parts, fmt.Sprintf("Notes: %s", session.Notes))
	}

	parts = append(parts, "", "Created by Gym Calendar Agent", fmt.Sprintf("Email ID: %s", session.SourceMessageID))
	return strings.Join(parts, "\n")
}

// sameEventDetails reports whether the existing event already carries the
// details the session would write, so no-change confirmations skip the write.
func sameEventDetails(existing, updated *calendar.Event) bool {
	if existing.Summary != updated.Summary || existing.Location != updated.Location {
		return false
	}
	if existing.Description != updated.Description {
		return false
	}
	if existing.Start == nil || updated.Start == nil || existing.End == nil || updated.End == nil {
		return false
	}
	return existing.Start.DateTime == updated.Start.DateTime && existing.End.DateTime == updated.End.DateTime
}

// withRetry retries transient Calendar API failures with exponential backoff.
func (g *GoogleGateway) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if !isTransient(err) {
			return err
		}
		if attempt == 3 {
			break
		}

		waitTime := time.Duration(attempt*attempt) * time.Second
		logrus.Warnf("Calendar %s attempt %d/3 failed, retrying in %v: %v", op, attempt, waitTime, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
	return lastErr
}

func isTransient(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return false
}
