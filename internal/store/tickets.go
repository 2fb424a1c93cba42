// Package store persists tickets and the sequence counter to JSON files on disk.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
	"github.com/sirupsen/logrus"

	"tg_intake_bot/internal/domain"
	"tg_intake_bot/internal/logging"
)

// File names used inside the data directory.
const (
	TicketsFileName = "requests.json"
	CounterFileName = "counter.json"
)

const dataDirPerm = 0o755

// writeFile is overridable for tests. Replacement goes through a temp file and
// rename so a crash mid-write never truncates the existing store.
var writeFile = atomic.WriteFile

// TicketStore owns the JSON-array ticket file. All mutating access serializes
// through an internal mutex so concurrent appends cannot interleave the
// read-modify-write cycle.
type TicketStore struct {
	path   string
	logger *logrus.Entry

	mu sync.Mutex
}

// NewTicketStore constructs a store rooted at the given data directory,
// creating the directory when absent.
func NewTicketStore(dataDir string, logger *logrus.Entry) (*TicketStore, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, errors.New("data directory is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	if err := os.MkdirAll(dataDir, dataDirPerm); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	return &TicketStore{
		path:   filepath.Join(dataDir, TicketsFileName),
		logger: logger,
	}, nil
}

// Append defaults the ticket status to open when unset, appends the ticket to
// the persisted list, and atomically replaces the store file. Failures are
// logged and returned; the caller owns user-facing failure handling.
func (s *TicketStore) Append(ticket domain.Ticket) error {
	if s == nil {
		return errors.New("ticket store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket.Status == 0 {
		ticket.Status = domain.StatusOpen
	}
	if ticket.Files == nil {
		ticket.Files = []string{}
	}
	if ticket.FileTypes == nil {
		ticket.FileTypes = []string{}
	}

	tickets := append(s.loadLocked(), ticket)

	payload, err := json.MarshalIndent(tickets, "", "  ")
	if err != nil {
		s.logger.WithField("event", "store_marshal_error").WithError(err).Error("failed to marshal ticket store")
		return fmt.Errorf("marshal ticket store: %w", err)
	}

	if err := writeFile(s.path, bytes.NewReader(payload)); err != nil {
		s.logger.WithFields(logging.Fields{
			"event":  "store_write_error",
			"ticket": ticket.Number,
		}).WithError(err).Error("failed to write ticket store")
		return fmt.Errorf("write ticket store: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"event":  "ticket_saved",
		"ticket": ticket.Number,
	}).Info("ticket appended to store")

	return nil
}

// Load parses the store file. A missing file or invalid JSON yields an empty
// slice rather than an error; callers treat an unreadable store as no tickets.
func (s *TicketStore) Load() []domain.Ticket {
	if s == nil {
		return []domain.Ticket{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadLocked()
}

// FindUserID scans for the first ticket with the given sequence number and
// returns the submitter's Telegram user id.
func (s *TicketStore) FindUserID(number int64) (int64, bool) {
	if s == nil {
		return 0, false
	}

	for _, ticket := range s.Load() {
		if ticket.Number == number {
			return ticket.UserID, true
		}
	}

	s.logger.WithFields(logging.Fields{
		"event":  "ticket_lookup_miss",
		"ticket": number,
	}).Warn("ticket was not found in the store")

	return 0, false
}

// Count returns the number of persisted tickets.
func (s *TicketStore) Count() int {
	return len(s.Load())
}

func (s *TicketStore) loadLocked() []domain.Ticket {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.WithField("event", "store_read_error").WithError(err).Error("failed to read ticket store, treating as empty")
		}
		return []domain.Ticket{}
	}

	var tickets []domain.Ticket
	if err := json.Unmarshal(raw, &tickets); err != nil {
		s.logger.WithField("event", "store_parse_error").WithError(err).Error("ticket store contains invalid JSON, treating as empty")
		return []domain.Ticket{}
	}

	if tickets == nil {
		tickets = []domain.Ticket{}
	}

	return tickets
}
