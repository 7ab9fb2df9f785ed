package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gym-calendar-agent/internal/llm"
	"gym-calendar-agent/internal/model"
)

const systemPrompt = "You are a helpful assistant that processes emails for gym class scheduling automation. Always respond with valid JSON."

const maxBodyChars = 2000

// Classifier turns a raw email into a typed classification plus confidence.
type Classifier struct {
	client     llm.Client
	maxRetries int
}

// New creates a new classifier
func New(client llm.Client, maxRetries int) *Classifier {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Classifier{client: client, maxRetries: maxRetries}
}

// classificationResponse is the JSON contract the model must honor.
type classificationResponse struct {
	EmailType  string  `json:"email_type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Classify classifies one email. A transient provider failure is retried with
// exponential backoff; exhaustion returns an error so the caller can leave the
// message unmarked. Unparseable model output is never an error: it degrades to
// the safest taxonomy member, other with confidence 0.
func (c *Classifier) Classify(ctx context.Context, email model.EmailMessage) (model.Classification, error) {
	prompt := c.buildPrompt(email)

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		response, err := c.client.Complete(ctx, systemPrompt, prompt)
		if err == nil {
			return c.parseResponse(response), nil
		}

		lastErr = err
		if !llm.IsTransient(err) || attempt == c.maxRetries {
			break
		}

		waitTime := time.Duration(attempt*attempt) * time.Second
		logrus.Warnf("Classification attempt %d/%d for email %s failed, retrying in %v: %v",
			attempt, c.maxRetries, email.ID, waitTime, err)

		select {
		case <-ctx.Done():
			return model.Classification{}, ctx.Err()
		case <-time.After(waitTime):
		}
	}

	return model.Classification{}, fmt.Errorf("classification failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Classifier) buildPrompt(email model.EmailMessage) string {
	body := email.Body
	if body == "" {
		body = email.HTMLBody
	}
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars] + "..."
	}

	return fmt.Sprintf(`Analyze the following email for a gym class scheduling system and classify it.

Email Details:
- Subject: %s
- From: %s
- Date: %s
- Snippet: %s
- Body: %s

Respond with a JSON object containing:

1. email_type: One of ["registration_form", "confirmation", "cancellation", "waitlist", "other"]
   - "registration_form": For emails containing class registration forms or links
   - "confirmation": For registration confirmation emails, including Google Forms confirmations
   - "cancellation": For class cancellation notices
   - "waitlist": For waitlist notifications
   - "other": For any other email types

2. confidence: A float between 0.0 and 1.0 indicating your confidence in the classification

3. reasoning: Brief explanation of your classification

Respond with valid JSON only, no additional text.`,
		email.Subject, email.From, email.ReceivedAt.Format(time.RFC1123), email.Snippet, body)
}

// parseResponse parses the model output into a Classification. Any deviation
// from the contract collapses to other/0.0 so a bad response can never drive
// a calendar mutation.
func (c *Classifier) parseResponse(response string) model.Classification {
	cleaned := StripMarkdownFences(response)

	var parsed classificationResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		logrus.Errorf("Failed to parse classification response: %v", err)
		return fallbackClassification(fmt.Sprintf("unparseable model output: %v", err))
	}

	emailType := model.EmailType(strings.TrimSpace(parsed.EmailType))
	if !emailType.IsValid() {
		logrus.Warnf("Model returned email type outside taxonomy: %q", parsed.EmailType)
		return fallbackClassification(fmt.Sprintf("email type %q outside taxonomy", parsed.EmailType))
	}

	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		logrus.Warnf("Model returned confidence outside [0,1]: %f", parsed.Confidence)
		return fallbackClassification(fmt.Sprintf("confidence %f outside [0,1]", parsed.Confidence))
	}

	return model.Classification{
		Type:       emailType,
		Confidence: parsed.Confidence,
		Reasoning:  parsed.Reasoning,
	}
}

func fallbackClassification(reason string) model.Classification {
	return model.Classification{
		Type:       model.EmailTypeOther,
		Confidence: 0.0,
		Reasoning:  reason,
	}
}

// StripMarkdownFences removes a surrounding ```json ... ``` block that some
// models wrap around their JSON output.
func StripMarkdownFences(response string) string {
	cleaned := strings.TrimSpace(response)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}
