package exchange

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"regime-trade-bot-go/internal/logger"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	redialWait = 5 * time.Second
)

// PriceStream maintains a websocket subscription to the venue's
// miniTicker stream and keeps the last traded price of every symbol.
// The cycle loop reads these prices to value open positions between
// candle fetches.
type PriceStream struct {
	wsBaseURL string

	mu     sync.RWMutex
	prices map[string]float64

	stop chan struct{}
	done chan struct{}
}

// NewPriceStream creates a stream against the given websocket base URL
// (e.g. wss://stream.binance.com:9443).
func NewPriceStream(wsBaseURL string) *PriceStream {
	return &PriceStream{
		wsBaseURL: wsBaseURL,
		prices:    make(map[string]float64),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the connect/read/reconnect loop in the background.
func (s *PriceStream) Start() {
	go s.loop()
}

// Stop shuts the stream down and waits for the loop to exit.
func (s *PriceStream) Stop() {
	close(s.stop)
	<-s.done
}

// Price returns the last streamed price for a symbol, ok=false if none
// arrived yet.
func (s *PriceStream) Price(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[symbol]
	return p, ok
}

// Snapshot copies the whole price map.
func (s *PriceStream) Snapshot() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.prices))
	for k, v := range s.prices {
		out[k] = v
	}
	return out
}

func (s *PriceStream) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(s.wsBaseURL+"/ws/!miniTicker@arr", nil)
		if err != nil {
			logger.S().Warnf("price stream dial failed: %v, retrying in %s", err, redialWait)
			if !s.sleep(redialWait) {
				return
			}
			continue
		}

		logger.S().Info("price stream connected")
		if err := s.handleMessages(conn); err != nil {
			logger.S().Warnf("price stream read failed: %v, reconnecting", err)
		}
		conn.Close()

		if !s.sleep(redialWait) {
			return
		}
	}
}

func (s *PriceStream) handleMessages(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()
	pingStop := make(chan struct{})
	defer close(pingStop)

	go func() {
		for {
			select {
			case <-pingTicker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-pingStop:
				return
			case <-s.stop:
				return
			}
		}
	}()

	for {
		select {
		case <-s.stop:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				return fmt.Errorf("read message: %w", err)
			}

			var tickers []struct {
				Symbol string      `json:"s"`
				Close  json.Number `json:"c"`
			}
			if err := json.Unmarshal(message, &tickers); err != nil {
				continue
			}

			s.mu.Lock()
			for _, t := range tickers {
				if price, err := t.Close.Float64(); err == nil {
					s.prices[t.Symbol] = price
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *PriceStream) sleep(d time.Duration) bool {
	select {
	case <-s.stop:
		return false
	case <-time.After(d):
		return true
	}
}
