// Package siglog persists every generated signal to daily JSONL and CSV
// audit files and keeps a short in-memory history for display.
package siglog

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tapereader/internal/config"
	"tapereader/internal/signal"
	"tapereader/internal/util"
)

// StatusGenerated is the initial status stamped on every logged signal.
const StatusGenerated = "GENERATED"

// entry is the durable record shape. The embedded signal contributes the
// fixed audit keys; changing them breaks downstream analysis tooling.
type entry struct {
	Timestamp string `json:"timestamp"`
	UID       string `json:"uid"`
	signal.Signal
	Status string `json:"status"`
}

var csvHeader = []string{
	"timestamp", "signal_id", "action", "asset", "entry",
	"confidence", "contracts", "expected_profit", "risk",
	"spread", "z_score", "triggers", "status",
}

// Logger buffers signal records and appends them to the day's files once the
// buffer fills. Safe for concurrent use.
type Logger struct {
	cfg   config.Logging
	log   zerolog.Logger
	clock util.Clock

	jsonlPath string
	csvPath   string

	mu      sync.Mutex
	buffer  []entry
	counter int
}

// NewLogger creates the log directory and the day's files, resuming the
// signal counter from any existing JSONL file. A nil clock means wall time.
func NewLogger(cfg config.Logging, log zerolog.Logger, clock util.Clock) (*Logger, error) {
	if clock == nil {
		clock = util.SystemClock()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	day := clock.Now().Format("20060102")
	l := &Logger{
		cfg:       cfg,
		log:       log,
		clock:     clock,
		jsonlPath: filepath.Join(cfg.Dir, "signals_"+day+".jsonl"),
		csvPath:   filepath.Join(cfg.Dir, "signals_"+day+".csv"),
	}
	l.counter = countLines(l.jsonlPath)

	if l.wants("csv") {
		if err := l.initCSV(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Logger) wants(format string) bool {
	for _, f := range l.cfg.Formats {
		if f == format {
			return true
		}
	}
	return false
}

func countLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	return n
}

func (l *Logger) initCSV() error {
	if _, err := os.Stat(l.csvPath); err == nil {
		return nil
	}
	f, err := os.Create(l.csvPath)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Log assigns the signal its id, buffers the record and flushes when the
// buffer is full. The assigned id is written back into the signal.
func (l *Logger) Log(sig *signal.Signal) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.counter++
	sig.ID = fmt.Sprintf("SIG_%s_%04d", now.Format("20060102_150405"), l.counter)

	rec := entry{
		Timestamp: now.Format("2006-01-02T15:04:05.000"),
		UID:       uuid.NewString(),
		Signal:    *sig,
		Status:    StatusGenerated,
	}
	l.buffer = append(l.buffer, rec)

	l.log.Info().
		Str("signal_id", sig.ID).
		Str("action", string(sig.Action)).
		Float64("entry", sig.Entry).
		Int("confidence", sig.Confidence).
		Msg("signal logged")

	if len(l.buffer) >= l.cfg.BufferSize {
		if err := l.flushLocked(); err != nil {
			return sig.ID, err
		}
	}
	return sig.ID, nil
}

// Flush writes any buffered records to disk.
func (l *Logger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

func (l *Logger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}
	batch := l.buffer
	l.buffer = nil

	if l.wants("jsonl") {
		if err := l.appendJSONL(batch); err != nil {
			l.buffer = append(batch, l.buffer...)
			return err
		}
	}
	if l.wants("csv") {
		if err := l.appendCSV(batch); err != nil {
			return err
		}
	}
	return nil
}

func (l *Logger) appendJSONL(batch []entry) error {
	f, err := os.OpenFile(l.jsonlPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open jsonl: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, rec := range batch {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

func (l *Logger) appendCSV(batch []entry) error {
	f, err := os.OpenFile(l.csvPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	for _, rec := range batch {
		row := []string{
			rec.Timestamp,
			rec.ID,
			string(rec.Action),
			rec.Asset,
			strconv.FormatFloat(rec.Entry, 'f', 2, 64),
			strconv.Itoa(rec.Confidence),
			strconv.Itoa(rec.Contracts),
			strconv.FormatFloat(rec.ExpectedProfit, 'f', 2, 64),
			strconv.FormatFloat(rec.Risk, 'f', 2, 64),
			strconv.FormatFloat(rec.Spread, 'f', 4, 64),
			strconv.FormatFloat(rec.ZScore, 'f', 4, 64),
			strings.Join(rec.Triggers, "|"),
			rec.Status,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// DailyStats aggregates the day's JSONL file.
type DailyStats struct {
	TotalSignals        int
	ByConfidence        map[string]int
	ByAction            map[signal.Action]int
	AvgConfidence       float64
	TotalExpectedProfit float64
}

// Stats flushes and summarizes today's audit file.
func (l *Logger) Stats() (DailyStats, error) {
	if err := l.Flush(); err != nil {
		return DailyStats{}, err
	}

	stats := DailyStats{
		ByConfidence: map[string]int{"60-69": 0, "70-79": 0, "80-89": 0, "90+": 0},
		ByAction:     map[signal.Action]int{signal.ActionBuy: 0, signal.ActionSell: 0},
	}

	f, err := os.Open(l.jsonlPath)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, err
	}
	defer f.Close()

	var confSum int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec entry
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		stats.TotalSignals++
		confSum += rec.Confidence
		switch {
		case rec.Confidence >= 90:
			stats.ByConfidence["90+"]++
		case rec.Confidence >= 80:
			stats.ByConfidence["80-89"]++
		case rec.Confidence >= 70:
			stats.ByConfidence["70-79"]++
		case rec.Confidence >= 60:
			stats.ByConfidence["60-69"]++
		}
		if _, ok := stats.ByAction[rec.Action]; ok {
			stats.ByAction[rec.Action]++
		}
		if rec.ExpectedProfit > 0 {
			stats.TotalExpectedProfit += rec.ExpectedProfit
		}
	}
	if stats.TotalSignals > 0 {
		stats.AvgConfidence = float64(confSum) / float64(stats.TotalSignals)
	}
	return stats, sc.Err()
}
