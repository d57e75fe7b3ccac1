// Package persistence stores durable bot state in BadgerDB. Each market
// saves its whole state under one key after every cycle; a missing key
// on startup means a fresh start, not an error.
package persistence

import (
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v3"

	"regime-trade-bot-go/internal/models"
)

const stateKeyPrefix = "bot_state:"

// StateRepository persists per-market bot state.
type StateRepository interface {
	SaveState(state *models.BotState) error
	LoadState(market string) (*models.BotState, error)
}

// OpenDB opens the shared BadgerDB instance. Badger's own logging is
// disabled; errors still surface from the operations. The caller owns
// the handle and closes it on shutdown.
func OpenDB(dbPath string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil
	return badger.Open(opts)
}

// OpenInMemoryDB opens a throwaway in-memory instance, used by tests
// and dry runs.
func OpenInMemoryDB() (*badger.DB, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return badger.Open(opts)
}

type badgerRepository struct {
	db *badger.DB
}

// NewBadgerRepository wraps a shared DB handle as a StateRepository.
func NewBadgerRepository(db *badger.DB) StateRepository {
	return &badgerRepository{db: db}
}

func stateKey(market string) []byte {
	return []byte(stateKeyPrefix + market)
}

// SaveState atomically saves the entire state of one market as JSON.
func (r *badgerRepository) SaveState(state *models.BotState) error {
	if state == nil || state.Market == "" {
		return errors.New("state must carry a market name")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey(state.Market), data)
	})
}

// LoadState loads one market's state. A missing key returns (nil, nil):
// the bot has never run against this market.
func (r *badgerRepository) LoadState(market string) (*models.BotState, error) {
	var state models.BotState

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey(market))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("state value is empty in database")
			}
			return json.Unmarshal(val, &state)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}
