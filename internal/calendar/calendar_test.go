package calendar

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gym-calendar-agent/internal/config"
	"gym-calendar-agent/internal/model"
)

func TestNewOAuthClientTimeout(t *testing.T) {
	cfg := &config.GmailConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-token",
		Timeout:      10 * time.Second,
	}

	client := newOAuthClient(cfg)
	assert.Equal(t, 10*time.Second, client.Timeout)

	// Without a configured timeout every call is still bounded.
	cfg.Timeout = 0
	client = newOAuthClient(cfg)
	assert.Equal(t, 60*time.Second, client.Timeout)
}

func TestBuildEvent(t *testing.T) {
	g := &GoogleGateway{
		calendarID: "primary",
		timezone:   "America/New_York",
		gymName:    "Boxing Gym",
		userEmail:  "member@example.com",
	}

	session := model.ClassSession{
		ClassName:       "Boxing Basics",
		StartTime:       time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC),
		EndTime:         time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC),
		Instructor:      "Maria",
		SourceMessageID: "m1",
	}

	event := g.buildEvent(session, false)
	assert.Equal(t, "Boxing Basics - Boxing Gym", event.Summary)
	assert.Equal(t, session.Key(), event.ExtendedProperties.Private[keyProperty])
	assert.NotContains(t, event.ExtendedProperties.Private, "waitlisted")
	assert.Contains(t, event.Description, "Instructor: Maria")
	assert.Contains(t, event.Description, "Email ID: m1")
	assert.False(t, event.Reminders.UseDefault)
	assert.Len(t, event.Reminders.Overrides, 2)
}

func TestBuildEventWaitlisted(t *testing.T) {
	g := &GoogleGateway{gymName: "Boxing Gym", timezone: "America/New_York"}

	session := model.ClassSession{
		ClassName: "Kickboxing",
		StartTime: time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC),
	}

	event := g.buildEvent(session, true)
	assert.True(t, strings.HasPrefix(event.Summary, "[Waitlist] "))
	assert.Equal(t, "true", event.ExtendedProperties.Private["waitlisted"])
}
