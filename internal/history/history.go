// Package history keeps the most recent predictions per user.
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxEntries is how many predictions are kept per user.
const MaxEntries = 10

// ErrNoUser is returned for an empty username.
var ErrNoUser = errors.New("history: username is required")

// Entry is one recorded prediction.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Disease   string    `json:"disease"`
	Symptoms  []string  `json:"symptoms"`
	CreatedAt time.Time `json:"timestamp"`
}

// Store is an append-only, per-user bounded log of predictions.
type Store interface {
	// Append records e and drops everything but the newest MaxEntries
	// entries for e.Username.
	Append(ctx context.Context, e Entry) error
	// List returns the user's entries, oldest first.
	List(ctx context.Context, username string) ([]Entry, error)
	Ping(ctx context.Context) error
	Close() error
}

// prepare validates e and fills the ID and timestamp.
func prepare(e Entry) (Entry, error) {
	e.Username = strings.TrimSpace(e.Username)
	if e.Username == "" {
		return Entry{}, ErrNoUser
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()
	if e.Symptoms == nil {
		e.Symptoms = []string{}
	} else {
		e.Symptoms = append([]string(nil), e.Symptoms...)
	}
	return e, nil
}

func normalizeUser(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", ErrNoUser
	}
	return username, nil
}
