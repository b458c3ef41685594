// Package history keeps the analyzed bill records, newest first.
package history

import (
	"encoding/json"
	"log/slog"

	"github.com/zombor/bill-analyzer/internal/bill"
	"github.com/zombor/bill-analyzer/internal/storage"
)

// Store is the persisted, deduplicated list of bill records. Storage
// errors are logged and treated as an empty list or a no-op.
type Store struct {
	kv storage.KV
}

// NewStore creates a Store backed by kv
func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv}
}

// Add prepends record, replacing any existing record with the same ID.
func (s *Store) Add(record *bill.Record) {
	s.update("add", func(records []*bill.Record) []*bill.Record {
		return append([]*bill.Record{record}, without(records, record.ID)...)
	})
}

// Remove deletes the record with id. Unknown IDs are ignored.
func (s *Store) Remove(id string) {
	s.update("remove", func(records []*bill.Record) []*bill.Record {
		return without(records, id)
	})
}

// List returns all records, most recent first
func (s *Store) List() []*bill.Record {
	data, err := s.kv.Get(storage.KeyHistory)
	if err != nil {
		slog.Error("Failed to load history", "error", err)
		return []*bill.Record{}
	}
	return decode(data)
}

// Get returns the record with id
func (s *Store) Get(id string) (*bill.Record, bool) {
	for _, r := range s.List() {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// Edit applies fn to the record with id in place, keeping its position.
// The record's ID and AnalyzedAt cannot be changed. It reports whether the
// record was found.
func (s *Store) Edit(id string, fn func(r *bill.Record)) bool {
	found := false
	s.update("edit", func(records []*bill.Record) []*bill.Record {
		for _, r := range records {
			if r.ID != id {
				continue
			}
			analyzedAt := r.AnalyzedAt
			fn(r)
			r.ID = id
			r.AnalyzedAt = analyzedAt
			found = true
			break
		}
		return records
	})
	return found
}

func (s *Store) update(op string, fn func([]*bill.Record) []*bill.Record) {
	err := s.kv.Update(storage.KeyHistory, func(current []byte) ([]byte, error) {
		return json.Marshal(fn(decode(current)))
	})
	if err != nil {
		slog.Error("Failed to save history", "op", op, "error", err)
	}
}

func without(records []*bill.Record, id string) []*bill.Record {
	kept := make([]*bill.Record, 0, len(records))
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	return kept
}

// decode treats an absent or corrupt value as an empty history.
func decode(data []byte) []*bill.Record {
	records := []*bill.Record{}
	if len(data) == 0 {
		return records
	}
	if err := json.Unmarshal(data, &records); err != nil {
		slog.Error("Failed to load history", "error", err)
		return []*bill.Record{}
	}
	return records
}
