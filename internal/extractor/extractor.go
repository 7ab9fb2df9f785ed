package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gym-calendar-agent/internal/classifier"
	"gym-calendar-agent/internal/llm"
	"gym-calendar-agent/internal/model"
)

const systemPrompt = "You are a helpful assistant that extracts structured class details from gym emails. Always respond with valid JSON."

const maxBodyChars = 1500

// ErrInsufficientData is returned when the email does not carry the
// identity-key fields (class name and start time) the dispatcher needs.
// It is a hard failure, never retried.
var ErrInsufficientData = errors.New("extraction: insufficient data for identity key")

// Extractor turns a classified email into a structured class session.
type Extractor struct {
	client          llm.Client
	location        *time.Location
	defaultDuration time.Duration
	maxRetries      int
}

// New creates a new extractor
func New(client llm.Client, location *time.Location, defaultDuration time.Duration, maxRetries int) *Extractor {
	if location == nil {
		location = time.Local
	}
	if defaultDuration <= 0 {
		defaultDuration = time.Hour
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Extractor{
		client:          client,
		location:        location,
		defaultDuration: defaultDuration,
		maxRetries:      maxRetries,
	}
}

// extractionResponse is the JSON contract for structured extraction.
type extractionResponse struct {
	InsufficientData bool     `json:"insufficient_data"`
	ClassName        string   `json:"class_name"`
	Date             string   `json:"date"`
	Time             string   `json:"time"`
	Instructor       string   `json:"instructor"`
	Location         string   `json:"location"`
	ClassType        string   `json:"class_type"`
	Difficulty       string   `json:"difficulty"`
	DurationMinutes  *int     `json:"duration_minutes"`
	Equipment        []string `json:"equipment_needed"`
	Notes            string   `json:"notes"`
}

// Extract pulls structured class details out of an email already classified
// as class-related. Transient provider failures are retried with backoff;
// unparseable output or missing identity-key fields fail hard so the
// dispatcher never acts on a guessed session.
func (e *Extractor) Extract(ctx context.Context, email model.EmailMessage, emailType model.EmailType) (*model.ClassSession, error) {
	prompt := e.buildPrompt(email, emailType)

	var response string
	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		var err error
		response, err = e.client.Complete(ctx, systemPrompt, prompt)
		if err == nil {
			lastErr = nil
			break
		}

		lastErr = err
		if !llm.IsTransient(err) || attempt == e.maxRetries {
			break
		}

		waitTime := time.Duration(attempt*attempt) * time.Second
		logrus.Warnf("Extraction attempt %d/%d for email %s failed, retrying in %v: %v",
			attempt, e.maxRetries, email.ID, waitTime, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(waitTime):
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("extraction failed after %d attempts: %w", e.maxRetries, lastErr)
	}

	return e.parseResponse(response, email.ID)
}

func (e *Extractor) buildPrompt(email model.EmailMessage, emailType model.EmailType) string {
	body := email.Body
	if body == "" {
		body = email.HTMLBody
	}
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars] + "..."
	}

	return fmt.Sprintf(`Extract class details from this gym email, which was classified as %q.

Subject: %s
Body: %s

Return a JSON object with:
- class_name: Name of the class (e.g., "Boxing Basics", "Kickboxing")
- date: Date of the class in YYYY-MM-DD format
- time: Start time of the class in 24-hour HH:MM format
- instructor: Instructor/coach name
- location: Location/venue
- class_type: Type of class (e.g., "boxing", "kickboxing", "fitness")
- difficulty: Difficulty level
- duration_minutes: Duration in minutes as a number
- equipment_needed: Array of equipment needed
- notes: Any additional notes

If a field is not mentioned in the email, use null. Do not invent values.
If the email does not state both the class name and its date and time, respond
instead with {"insufficient_data": true}.

Return valid JSON only, no additional text.`,
		emailType, email.Subject, body)
}

func (e *Extractor) parseResponse(response, messageID string) (*model.ClassSession, error) {
	cleaned := classifier.StripMarkdownFences(response)

	var parsed extractionResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("unparseable extraction response: %w", err)
	}

	if parsed.InsufficientData {
		return nil, ErrInsufficientData
	}

	className := strings.TrimSpace(parsed.ClassName)
	if className == "" || strings.TrimSpace(parsed.Date) == "" || strings.TrimSpace(parsed.Time) == "" {
		return nil, ErrInsufficientData
	}

	startTime, err := e.parseStartTime(parsed.Date, parsed.Time)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientData, err)
	}

	duration := e.defaultDuration
	if parsed.DurationMinutes != nil && *parsed.DurationMinutes > 0 {
		duration = time.Duration(*parsed.DurationMinutes) * time.Minute
	}

	return &model.ClassSession{
		ClassName:       className,
		StartTime:       startTime,
		EndTime:         startTime.Add(duration),
		Instructor:      strings.TrimSpace(parsed.Instructor),
		Location:        strings.TrimSpace(parsed.Location),
		ClassType:       strings.TrimSpace(parsed.ClassType),
		Difficulty:      strings.TrimSpace(parsed.Difficulty),
		Equipment:       parsed.Equipment,
		Notes:           strings.TrimSpace(parsed.Notes),
		SourceMessageID: messageID,
	}, nil
}

// parseStartTime combines the extracted date and time in the configured
// timezone. The prompt pins the formats, but a couple of common variants the
// model slips into are still accepted.
func (e *Extractor) parseStartTime(dateStr, timeStr string) (time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)
	timeStr = strings.ToUpper(strings.TrimSpace(timeStr))

	var date time.Time
	var err error
	for _, layout := range []string{"2006-01-02", "01/02/2006"} {
		date, err = time.ParseInLocation(layout, dateStr, e.location)
		if err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", dateStr)
	}

	var clock time.Time
	for _, layout := range []string{"15:04", "3:04PM", "3:04 PM"} {
		clock, err = time.Parse(layout, timeStr)
		if err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", timeStr)
	}

	return time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), 0, 0, e.location), nil
}
