// Package history is the durable trade log. Closed round trips are
// written to BadgerDB with time-ordered keys so the portfolio risk
// engine can scan trailing windows cheaply.
package history

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"

	"regime-trade-bot-go/internal/models"
)

// Key layout: trade:<market>:<zero-padded unix nanos>:<uuid>. The
// padding keeps keys lexicographically ordered by time within a market.
func tradeKey(market string, ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("trade:%s:%020d:%s", market, ts.UnixNano(), id))
}

func tradePrefix(market string) []byte {
	return []byte("trade:" + market + ":")
}

// Store writes and reads trade records on a shared BadgerDB handle.
type Store struct {
	db *badger.DB
}

// NewStore wraps the shared DB handle.
func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

// Record persists one closed trade, assigning an id and timestamp when
// the caller left them empty.
func (s *Store) Record(trade models.TradeRecord) error {
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	if trade.Time.IsZero() {
		trade.Time = time.Now()
	}
	data, err := json.Marshal(trade)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tradeKey(trade.Market, trade.Time, trade.ID), data)
	})
}

// All returns every trade for a market in time order.
func (s *Store) All(market string) ([]models.TradeRecord, error) {
	return s.scan(market, time.Time{})
}

// Since returns a market's trades at or after the cutoff in time order.
// The key layout makes this a seek, not a full scan.
func (s *Store) Since(market string, cutoff time.Time) ([]models.TradeRecord, error) {
	return s.scan(market, cutoff)
}

func (s *Store) scan(market string, cutoff time.Time) ([]models.TradeRecord, error) {
	var trades []models.TradeRecord
	prefix := tradePrefix(market)

	seek := prefix
	if !cutoff.IsZero() {
		seek = []byte(fmt.Sprintf("trade:%s:%020d:", market, cutoff.UnixNano()))
	}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var t models.TradeRecord
				if err := json.Unmarshal(val, &t); err != nil {
					return err
				}
				trades = append(trades, t)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// Stats summarizes a market's trade log.
type Stats struct {
	Total    int     `json:"total"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	TotalPnL float64 `json:"totalPnl"`
	WinRate  float64 `json:"winRate"`
}

// Stats aggregates the full trade log for a market.
func (s *Store) Stats(market string) (Stats, error) {
	trades, err := s.All(market)
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	for _, t := range trades {
		stats.Total++
		stats.TotalPnL += t.PnL
		if t.PnL > 0 {
			stats.Wins++
		} else if t.PnL < 0 {
			stats.Losses++
		}
	}
	if stats.Total > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.Total) * 100
	}
	return stats, nil
}
