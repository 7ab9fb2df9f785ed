package fetcher

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"

	"gym-calendar-agent/internal/config"
)

func TestNewOAuthClientTimeout(t *testing.T) {
	cfg := &config.GmailConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-token",
		Timeout:      10 * time.Second,
	}

	client := newOAuthClient(cfg, gmail.GmailModifyScope)
	assert.Equal(t, 10*time.Second, client.Timeout)

	// Without a configured timeout every call is still bounded.
	cfg.Timeout = 0
	client = newOAuthClient(cfg, gmail.GmailModifyScope)
	assert.Equal(t, 60*time.Second, client.Timeout)
}

func TestParseMessageNoPayload(t *testing.T) {
	f := &GmailFetcher{}

	_, err := f.parseMessage(&gmail.Message{Id: "m1", Snippet: "metadata only"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no payload")
}

func TestParseMessage(t *testing.T) {
	f := &GmailFetcher{}

	msg := &gmail.Message{
		Id:      "m1",
		Snippet: "Your boxing class is confirmed",
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "Boxing Basics confirmation"},
				{Name: "From", Value: "gym@example.com"},
				{Name: "Date", Value: "Sat, 01 Mar 2025 09:00:00 -0500"},
			},
			Parts: []*gmail.MessagePart{
				{
					MimeType: "text/plain",
					Body: &gmail.MessagePartBody{
						Data: base64.URLEncoding.EncodeToString([]byte("See you Saturday at 6pm!")),
					},
				},
			},
		},
	}

	email, err := f.parseMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, "m1", email.ID)
	assert.Equal(t, "Boxing Basics confirmation", email.Subject)
	assert.Equal(t, "gym@example.com", email.From)
	assert.Equal(t, "See you Saturday at 6pm!", email.Body)
	assert.Equal(t, 2025, email.ReceivedAt.Year())
}
