package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tapereader/internal/market"
)

// gateway messages carry either a book replacement or a batch of trades for
// one symbol.
type gatewayMessage struct {
	Type   string         `json:"type"` // "book" or "trades"
	Symbol string         `json:"symbol"`
	Bids   []gatewayLevel `json:"bids,omitempty"`
	Asks   []gatewayLevel `json:"asks,omitempty"`
	Trades []gatewayTrade `json:"trades,omitempty"`
}

type gatewayLevel struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	ID     string  `json:"id,omitempty"`
	Time   string  `json:"time,omitempty"`
}

type gatewayTrade struct {
	Timestamp string  `json:"timestamp"`
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
}

// Websocket consumes a market gateway stream and keeps the latest snapshot
// for each tracked symbol. Reconnects with exponential backoff.
type Websocket struct {
	url     string
	symbols []string
	log     zerolog.Logger

	mu     sync.RWMutex
	books  map[string]market.Book
	trades map[string][]market.Trade
	stamp  time.Time
}

// NewWebsocket builds a websocket provider for the given symbols.
func NewWebsocket(url string, symbols []string, log zerolog.Logger) *Websocket {
	w := &Websocket{
		url:     url,
		symbols: append([]string(nil), symbols...),
		log:     log,
		books:   make(map[string]market.Book, len(symbols)),
		trades:  make(map[string][]market.Trade, len(symbols)),
	}
	return w
}

// Start launches the stream consumer.
func (w *Websocket) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Websocket) run(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		err := w.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		w.log.Warn().Err(err).Msg("feed disconnected, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
	}
}

func (w *Websocket) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	w.log.Info().Str("url", w.url).Strs("symbols", w.symbols).Msg("connected market data feed")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg gatewayMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			w.log.Warn().Err(err).Msg("failed to decode gateway message")
			continue
		}
		w.apply(msg)
	}
}

func (w *Websocket) apply(msg gatewayMessage) {
	if !w.tracked(msg.Symbol) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stamp = time.Now()

	switch msg.Type {
	case "book":
		w.books[msg.Symbol] = market.Book{
			Bids: convertLevels(msg.Bids),
			Asks: convertLevels(msg.Asks),
		}
	case "trades":
		for _, tr := range msg.Trades {
			side := market.SideSell
			if tr.Side == string(market.SideBuy) {
				side = market.SideBuy
			}
			w.trades[msg.Symbol] = append(w.trades[msg.Symbol], market.Trade{
				Timestamp: tr.Timestamp,
				Symbol:    msg.Symbol,
				Side:      side,
				Price:     tr.Price,
				Volume:    tr.Volume,
			})
		}
		// Bound the per-symbol buffer in case the consumer stalls.
		const maxBuffered = 500
		if buf := w.trades[msg.Symbol]; len(buf) > maxBuffered {
			w.trades[msg.Symbol] = append([]market.Trade(nil), buf[len(buf)-maxBuffered:]...)
		}
	}
}

func (w *Websocket) tracked(symbol string) bool {
	for _, s := range w.symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

func convertLevels(levels []gatewayLevel) []market.BookLevel {
	out := make([]market.BookLevel, len(levels))
	for i, l := range levels {
		out[i] = market.BookLevel{Price: l.Price, Volume: l.Volume, ID: l.ID, Time: l.Time}
	}
	return out
}

// Snapshot returns the latest view and drains the buffered trades, so each
// trade is delivered exactly once. An error is returned until every tracked
// symbol has received at least one book.
func (w *Websocket) Snapshot(ctx context.Context) (*market.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := &market.Snapshot{
		Timestamp:   w.stamp,
		Instruments: make(map[string]market.Instrument, len(w.symbols)),
	}
	for _, sym := range w.symbols {
		if _, ok := w.books[sym]; !ok {
			return nil, fmt.Errorf("no book yet for %s", sym)
		}
	}
	for _, sym := range w.symbols {
		trades := w.trades[sym]
		w.trades[sym] = nil
		snap.Instruments[sym] = market.Instrument{Book: w.books[sym], Trades: trades}
	}
	return snap, nil
}
