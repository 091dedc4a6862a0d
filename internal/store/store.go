// Package store is the query interface over the relational schema. Every
// read and write of plans, logs, registrations, cached analyses,
// notifications, audit events and approval tokens goes through it.
package store

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrStaleTransition means the row was no longer in the expected status
	// when a conditional update ran; another writer got there first.
	ErrStaleTransition = errors.New("stale status transition")
	ErrBadTransition   = errors.New("status transition not allowed")
)

type Store struct {
	db *gorm.DB
}

func New(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

// DB exposes the underlying handle for callers that need a transaction
// spanning several store operations.
func (s *Store) DB() *gorm.DB { return s.db }

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
