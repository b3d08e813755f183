// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/shopgraph/shopgraph/services/assistant/datatypes"
)

// ErrSessionNotFound indicates no state is checkpointed for the session.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore checkpoints conversation state between turns.
//
// Load returns ErrSessionNotFound for unknown sessions; callers start a fresh
// state. Save overwrites the checkpoint atomically. Delete is idempotent.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (*datatypes.ConversationState, error)
	Save(ctx context.Context, state *datatypes.ConversationState) error
	Delete(ctx context.Context, sessionID string) error
}

// MemorySessionStore keeps checkpoints in process memory. Used by tests and
// the REPL; state does not survive a restart.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*datatypes.ConversationState
}

// NewMemorySessionStore creates an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*datatypes.ConversationState)}
}

// Load implements SessionStore.
func (m *MemorySessionStore) Load(ctx context.Context, sessionID string) (*datatypes.ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	// Hand out a copy so callers can't mutate the checkpoint in place.
	return state.Clone(), nil
}

// Save implements SessionStore.
func (m *MemorySessionStore) Save(ctx context.Context, state *datatypes.ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[state.SessionID] = state.Clone()
	return nil
}

// Delete implements SessionStore.
func (m *MemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

var _ SessionStore = (*MemorySessionStore)(nil)

// BadgerSessionStore checkpoints state in an embedded Badger database so
// sessions survive restarts.
type BadgerSessionStore struct {
	db *badger.DB
}

// NewBadgerSessionStore opens (or creates) the database at dir.
func NewBadgerSessionStore(dir string) (*BadgerSessionStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	slog.Info("Opened session store", "dir", dir)
	return &BadgerSessionStore{db: db}, nil
}

// Close flushes and closes the database.
func (b *BadgerSessionStore) Close() error {
	return b.db.Close()
}

func sessionKey(sessionID string) []byte {
	return []byte("session/" + sessionID)
}

// Load implements SessionStore.
func (b *BadgerSessionStore) Load(ctx context.Context, sessionID string) (*datatypes.ConversationState, error) {
	var state datatypes.ConversationState
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &state)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return &state, nil
}

// Save implements SessionStore.
func (b *BadgerSessionStore) Save(ctx context.Context, state *datatypes.ConversationState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", state.SessionID, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(state.SessionID), payload)
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", state.SessionID, err)
	}
	return nil
}

// Delete implements SessionStore.
func (b *BadgerSessionStore) Delete(ctx context.Context, sessionID string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(sessionID))
	})
	if err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

var _ SessionStore = (*BadgerSessionStore)(nil)
