package fetcher

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	"github.com/sirupsen/logrus"

	"gym-calendar-agent/internal/config"
	"gym-calendar-agent/internal/model"
)

// IMAPFetcher implements Fetcher over IMAP. The processed marker is a custom
// keyword flag; fetches search for messages without it. The mailbox query is
// applied as a full-text criterion since IMAP has no Gmail search syntax.
type IMAPFetcher struct {
	client        *client.Client
	processedFlag string

	mu   sync.Mutex
	uids map[string]uint32
}

// NewIMAPFetcher creates a new IMAP fetcher
func NewIMAPFetcher(cfg *config.GmailConfig, processedLabel string) (*IMAPFetcher, error) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(cfg.IMAPUser, cfg.IMAPPassword); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	return &IMAPFetcher{
		client:        c,
		processedFlag: keywordFlag(processedLabel),
		uids:          make(map[string]uint32),
	}, nil
}

// keywordFlag converts the configured label into an IMAP keyword flag.
func keywordFlag(label string) string {
	return strings.ReplaceAll(strings.TrimSpace(label), " ", "-")
}

// FetchUnprocessed returns up to maxCount messages without the processed flag.
func (f *IMAPFetcher) FetchUnprocessed(ctx context.Context, query string, maxCount int64) ([]model.EmailMessage, error) {
	if _, err := f.client.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{f.processedFlag}
	if query != "" {
		criteria.Text = []string{query}
	}

	uids, err := f.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}

	if len(uids) == 0 {
		return []model.EmailMessage{}, nil
	}
	if int64(len(uids)) > maxCount {
		uids = uids[:maxCount]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	section := &imap.BodySectionName{}
	go func() {
		done <- f.client.UidFetch(seqset, []imap.FetchItem{imap.FetchEnvelope, section.FetchItem(), imap.FetchUid}, messages)
	}()

	var emails []model.EmailMessage

	for msg := range messages {
		email, err := f.parseMessage(msg, section)
		if err != nil {
			logrus.Warnf("Failed to parse IMAP message: %v", err)
			continue
		}

		f.mu.Lock()
		f.uids[email.ID] = msg.Uid
		f.mu.Unlock()

		emails = append(emails, email)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return emails, nil
}

// MarkProcessed adds the processed keyword flag to the message.
func (f *IMAPFetcher) MarkProcessed(ctx context.Context, messageID string) error {
	f.mu.Lock()
	uid, ok := f.uids[messageID]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown message id %s: not seen in this session", messageID)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{f.processedFlag}
	if err := f.client.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("failed to flag message %s as processed: %w", messageID, err)
	}

	logrus.Debugf("Flagged message %s as processed", messageID)
	return nil
}

func (f *IMAPFetcher) parseMessage(msg *imap.Message, section *imap.BodySectionName) (model.EmailMessage, error) {
	email := model.EmailMessage{}

	if msg.Envelope != nil {
		email.ID = msg.Envelope.MessageId
		email.Subject = msg.Envelope.Subject
		email.ReceivedAt = msg.Envelope.Date
		if len(msg.Envelope.From) > 0 {
			email.From = msg.Envelope.From[0].Address()
		}
	}
	if email.ID == "" {
		email.ID = fmt.Sprintf("imap-uid-%d", msg.Uid)
	}

	if err := f.parseBody(msg, section, &email); err != nil {
		return email, err
	}

	return email, nil
}

func (f *IMAPFetcher) parseBody(msg *imap.Message, section *imap.BodySectionName, email *model.EmailMessage) error {
	r := msg.GetBody(section)
	if r == nil {
		return nil
	}

	entity, err := message.Read(r)
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}

	if mr := entity.MultipartReader(); mr != nil {
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("failed to read part: %w", err)
			}

			content, err := io.ReadAll(p.Body)
			if err != nil {
				return fmt.Errorf("failed to read part body: %w", err)
			}

			contentType := p.Header.Get("Content-Type")
			if strings.Contains(contentType, "text/plain") {
				email.Body = string(content)
			} else if strings.Contains(contentType, "text/html") {
				email.HTMLBody = string(content)
			}
		}
	} else {
		content, err := io.ReadAll(entity.Body)
		if err != nil {
			return fmt.Errorf("failed to read message body: %w", err)
		}

		contentType := entity.Header.Get("Content-Type")
		if strings.Contains(contentType, "text/html") {
			email.HTMLBody = string(content)
		} else {
			email.Body = string(content)
		}
	}

	return nil
}

// Close logs out of the IMAP session
func (f *IMAPFetcher) Close() error {
	return f.client.Logout()
}
