// Package intake implements the ticket intake conversation and the submission
// dispatcher that forwards confirmed tickets to the staff chat.
package intake

import (
	"sync"

	"tg_intake_bot/internal/domain"
)

// State identifies the current step of an intake conversation.
type State int

const (
	StateSelectAddress State = iota
	StateInputText
	StateUploadFiles
	StateInputPhone
	StateConfirmation
	// StateCompleted marks a submitted session between ticket dispatch and
	// session teardown so a duplicate confirmation cannot submit twice.
	StateCompleted
)

// Session is the in-memory record of one user's progress through the intake
// flow. It lives only for the duration of the conversation; a process restart
// discards it.
type Session struct {
	// mu serializes all field access. Telegram dispatches each update on its
	// own goroutine, so two updates from the same user can arrive
	// concurrently; handlers hold mu across the state check and mutation.
	mu sync.Mutex

	State       State
	Address     string
	Text        string
	Attachments []domain.Attachment
	Phone       string

	// ContinuePromptID is the message id of the editable attachment prompt,
	// 0 while no prompt has been sent.
	ContinuePromptID int
}

// Sessions owns all live intake sessions, keyed by Telegram user id. Updates
// for distinct users are handled on separate goroutines, so map access is
// serialized through a mutex.
type Sessions struct {
	mu     sync.Mutex
	byUser map[int64]*Session
}

// NewSessions constructs an empty session registry.
func NewSessions() *Sessions {
	return &Sessions{byUser: make(map[int64]*Session)}
}

// Begin discards any prior session for the user and starts a fresh one at the
// address-selection step.
func (s *Sessions) Begin(userID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := &Session{State: StateSelectAddress}
	s.byUser[userID] = session

	return session
}

// Get returns the user's live session, if any.
func (s *Sessions) Get(userID int64) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byUser[userID]
	return session, ok
}

// Clear destroys the user's session.
func (s *Sessions) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.byUser, userID)
}
