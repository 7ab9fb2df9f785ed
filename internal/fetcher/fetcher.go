// Package fetcher is the mailbox gateway: it returns messages that still lack
// the processed marker and tags messages once they have been durably actioned.
package fetcher

import (
	"context"

	"gym-calendar-agent/internal/model"
)

// Fetcher is the mailbox provider interface. FetchUnprocessed must only
// return messages without the processed marker; MarkProcessed applies the
// marker and is called exactly once, after the corresponding action has been
// durably applied.
type Fetcher interface {
	FetchUnprocessed(ctx context.Context, query string, maxCount int64) ([]model.EmailMessage, error)
	MarkProcessed(ctx context.Context, messageID string) error
	Close() error
}
