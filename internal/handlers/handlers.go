package handlers

import (
	"gorm.io/gorm"

	"gym-calendar-agent/internal/ledger"
	"gym-calendar-agent/internal/scheduler"
)

// Handlers holds dependencies for the admin HTTP handlers
type Handlers struct {
	db        *gorm.DB
	ledger    ledger.Ledger
	scheduler *scheduler.Scheduler
}

// NewHandlers creates a new handlers instance
func NewHandlers(db *gorm.DB, l ledger.Ledger, s *scheduler.Scheduler) *Handlers {
	return &Handlers{
		db:        db,
		ledger:    l,
		scheduler: s,
	}
}
