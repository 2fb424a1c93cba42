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

	"github.com/sirupsen/logrus"

	"tg_intake_bot/internal/logging"
)

// fallbackCounter is used when the counter file exists but cannot be parsed.
const fallbackCounter = 1

type counterFile struct {
	Counter int64 `json:"counter"`
}

// Counter issues strictly increasing ticket sequence numbers. The value on
// disk is always the next number to assign, so numbers survive restarts.
type Counter struct {
	path   string
	logger *logrus.Entry

	mu   sync.Mutex
	next int64
}

// OpenCounter loads the persisted counter from the data directory. A missing
// file is seeded with the configured initial value; an unparseable file resets
// the counter to the hardcoded default with a warning.
func OpenCounter(dataDir string, initial int64, logger *logrus.Entry) (*Counter, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, errors.New("data directory is required")
	}
	if initial <= 0 {
		return nil, errors.New("initial counter value must be greater than 0")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	if err := os.MkdirAll(dataDir, dataDirPerm); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	c := &Counter{
		path:   filepath.Join(dataDir, CounterFileName),
		logger: logger,
	}

	raw, err := os.ReadFile(c.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		c.next = initial
		c.persistLocked()
		c.logger.WithFields(logging.Fields{
			"event":   "counter_seeded",
			"counter": initial,
		}).Info("counter file was not found, used the configured initial value")
	case err != nil:
		return nil, fmt.Errorf("read counter file: %w", err)
	default:
		var cf counterFile
		if unmarshalErr := json.Unmarshal(raw, &cf); unmarshalErr != nil || cf.Counter <= 0 {
			c.next = fallbackCounter
			c.logger.WithFields(logging.Fields{
				"event":   "counter_reset",
				"counter": fallbackCounter,
			}).Warn("counter file is unreadable, counter value reset to default")
		} else {
			c.next = cf.Counter
		}
	}

	return c, nil
}

// Next assigns the next sequence number. Read, increment, and persist happen
// under one lock so concurrent confirmations never share a number, and the
// increment lands on disk before the caller dispatches anything.
func (c *Counter) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	assigned := c.next
	c.next++
	c.persistLocked()

	return assigned
}

// Peek returns the next number to be assigned without consuming it.
func (c *Counter) Peek() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.next
}

// persistLocked saves the counter best-effort: a failed save is logged and
// never raised. The accepted risk is sequence reuse after a restart.
func (c *Counter) persistLocked() {
	payload, err := json.Marshal(counterFile{Counter: c.next})
	if err != nil {
		c.logger.WithField("event", "counter_save_error").WithError(err).Error("failed to marshal counter value")
		return
	}

	if err := writeFile(c.path, bytes.NewReader(payload)); err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "counter_save_error",
			"counter": c.next,
		}).WithError(err).Error("failed to save counter value to file")
		return
	}

	c.logger.WithFields(logging.Fields{
		"event":   "counter_saved",
		"counter": c.next,
	}).Debug("counter value saved")
}
