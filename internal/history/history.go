// Package history keeps a capped, newest-first log of send acknowledgments
// so later commands can refer back to recently sent messages.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/postalhq/postal-go/internal/logger"
	"github.com/postalhq/postal-go/postal"
)

// ErrEmpty is returned by Last when nothing has been recorded yet.
var ErrEmpty = errors.New("history is empty")

// List is the storage the history is kept in. *database.Redis implements it.
type List interface {
	PushCapped(ctx context.Context, key string, maxLen int64, values ...string) error
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// Entry is one acknowledged recipient of a send request.
type Entry struct {
	ID         string           `json:"id"`
	RecordedAt time.Time        `json:"recorded_at"`
	Subject    string           `json:"subject,omitempty"`
	Header     string           `json:"message_id_header,omitempty"`
	Recipient  string           `json:"recipient"`
	MessageID  postal.MessageID `json:"message_id"`
	Token      string           `json:"token"`
}

// Store records and lists entries.
type Store struct {
	list       List
	key        string
	maxEntries int64
	log        *logger.Logger
	now        func() time.Time
}

// NewStore creates a Store writing to key, keeping at most maxEntries.
func NewStore(list List, key string, maxEntries int64, log *logger.Logger) *Store {
	return &Store{
		list:       list,
		key:        key,
		maxEntries: maxEntries,
		log:        log.WithComponent("history"),
		now:        time.Now,
	}
}

// Record stores one entry per acknowledged recipient of res.
func (s *Store) Record(ctx context.Context, subject string, res *postal.SendResult) error {
	if res == nil || len(res.Messages) == 0 {
		return nil
	}

	now := s.now().UTC()
	values := make([]string, 0, len(res.Messages))
	// Pushed in reverse so the first recipient ends up at the head.
	recipients := res.Recipients()
	for i := len(recipients) - 1; i >= 0; i-- {
		addr := recipients[i]
		rcpt := res.Messages[addr]
		entry := Entry{
			ID:         uuid.New().String(),
			RecordedAt: now,
			Subject:    subject,
			Header:     res.MessageID,
			Recipient:  addr,
			MessageID:  rcpt.ID,
			Token:      rcpt.Token,
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to encode history entry: %w", err)
		}
		values = append(values, string(data))
	}

	if err := s.list.PushCapped(ctx, s.key, s.maxEntries, values...); err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}
	s.log.Debug().Int("entries", len(values)).Msg("history recorded")
	return nil
}

// Recent returns up to limit entries, newest first. Entries that fail to
// decode are skipped.
func (s *Store) Recent(ctx context.Context, limit int64) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	raw, err := s.list.Range(ctx, s.key, 0, limit-1)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			s.log.Warn().Err(err).Msg("skipping malformed history entry")
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Last returns the most recent entry.
func (s *Store) Last(ctx context.Context) (Entry, error) {
	entries, err := s.Recent(ctx, 1)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrEmpty
	}
	return entries[0], nil
}
