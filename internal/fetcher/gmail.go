package fetcher

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/mail"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"gym-calendar-agent/internal/config"
	"gym-calendar-agent/internal/model"
)

// GmailFetcher implements Fetcher using the Gmail API. The processed marker
// is a Gmail label, and fetches exclude it at the query level so an actioned
// message is never reconsidered.
type GmailFetcher struct {
	service        *gmail.Service
	userEmail      string
	processedLabel string
	labelID        string
}

// NewGmailFetcher creates a new Gmail API fetcher
func NewGmailFetcher(cfg *config.GmailConfig, processedLabel string) (*GmailFetcher, error) {
	ctx := context.Background()

	service, err := gmail.NewService(ctx, option.WithHTTPClient(newOAuthClient(cfg, gmail.GmailModifyScope)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &GmailFetcher{
		service:        service,
		userEmail:      cfg.UserEmail,
		processedLabel: processedLabel,
	}, nil
}

// newOAuthClient builds the HTTP client backing the Gmail service. The client
// timeout bounds every API call, so a stalled connection fails the cycle
// instead of suspending it until restart.
func newOAuthClient(cfg *config.GmailConfig, scope string) *http.Client {
	ctx := context.Background()

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{scope},
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

// FetchUnprocessed returns up to maxCount messages matching the query that do
// not yet carry the processed label.
func (f *GmailFetcher) FetchUnprocessed(ctx context.Context, query string, maxCount int64) ([]model.EmailMessage, error) {
	fullQuery := fmt.Sprintf("%s -label:%s", query, f.processedLabel)

	response, err := f.service.Users.Messages.List(f.userEmail).
		Q(fullQuery).
		MaxResults(maxCount).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	var emails []model.EmailMessage

	for _, msg := range response.Messages {
		message, err := f.service.Users.Messages.Get(f.userEmail, msg.Id).Format("full").Context(ctx).Do()
		if err != nil {
			logrus.Warnf("Failed to get message %s: %v", msg.Id, err)
			continue
		}

		email, err := f.parseMessage(message)
		if err != nil {
			logrus.Warnf("Failed to parse message %s: %v", msg.Id, err)
			continue
		}

		emails = append(emails, email)
	}

	return emails, nil
}

// MarkProcessed adds the processed label to the message, creating the label
// on first use.
func (f *GmailFetcher) MarkProcessed(ctx context.Context, messageID string) error {
	labelID, err := f.getOrCreateLabel(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve processed label: %w", err)
	}

	_, err = f.service.Users.Messages.Modify(f.userEmail, messageID, &gmail.ModifyMessageRequest{
		AddLabelIds:    []string{labelID},
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to mark message %s as processed: %w", messageID, err)
	}

	logrus.Debugf("Marked message %s as processed with label %q", messageID, f.processedLabel)
	return nil
}

func (f *GmailFetcher) getOrCreateLabel(ctx context.Context) (string, error) {
	if f.labelID != "" {
		return f.labelID, nil
	}

	results, err := f.service.Users.Labels.List(f.userEmail).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to list labels: %w", err)
	}

	for _, label := range results.Labels {
		if label.Name == f.processedLabel {
			f.labelID = label.Id
			return f.labelID, nil
		}
	}

	created, err := f.service.Users.Labels.Create(f.userEmail, &gmail.Label{
		Name:                  f.processedLabel,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create label %q: %w", f.processedLabel, err)
	}

	logrus.Infof("Created Gmail label %q", f.processedLabel)
	f.labelID = created.Id
	return f.labelID, nil
}

func (f *GmailFetcher) parseMessage(msg *gmail.Message) (model.EmailMessage, error) {
	email := model.EmailMessage{
		ID:      msg.Id,
		Snippet: msg.Snippet,
		Labels:  msg.LabelIds,
	}

	// Metadata-only responses carry no payload.
	if msg.Payload == nil {
		return email, fmt.Errorf("message %s has no payload", msg.Id)
	}

	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "Subject":
			email.Subject = header.Value
		case "From":
			email.From = header.Value
		case "Date":
			if t, err := mail.ParseDate(header.Value); err == nil {
				email.ReceivedAt = t
			}
		}
	}
	if email.ReceivedAt.IsZero() {
		email.ReceivedAt = time.UnixMilli(msg.InternalDate)
	}

	if err := f.parseBody(msg.Payload, &email); err != nil {
		return email, err
	}

	return email, nil
}

// parseBody recursively decodes message body parts.
func (f *GmailFetcher) parseBody(part *gmail.MessagePart, email *model.EmailMessage) error {
	if part.Body != nil && part.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return fmt.Errorf("failed to decode body data: %w", err)
		}

		content := string(data)

		switch part.MimeType {
		case "text/plain":
			email.Body = content
		case "text/html":
			email.HTMLBody = content
		}
	}

	for _, subPart := range part.Parts {
		if err := f.parseBody(subPart, email); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the Gmail fetcher
func (f *GmailFetcher) Close() error {
	// Gmail API service doesn't need explicit closing
	return nil
}
