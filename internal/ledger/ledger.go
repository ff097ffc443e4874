// Package ledger records the reports devapi accepts in a parquet file.
package ledger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
)

// Entry is one accepted report. Photos are kept as sizes only.
type Entry struct {
	ReceivedAt         int64   `parquet:"received_at" json:"received_at"`
	CarID              int64   `parquet:"car_id" json:"car_id"`
	Action             string  `parquet:"action,dict" json:"action"`
	Latitude           float64 `parquet:"latitude" json:"latitude"`
	Longitude          float64 `parquet:"longitude" json:"longitude"`
	Odometer           float64 `parquet:"odometer" json:"odometer"`
	Photos             int32   `parquet:"photos" json:"photos"`
	PhotoBytes         int64   `parquet:"photo_bytes" json:"photo_bytes"`
	OdometerPhotoBytes int64   `parquet:"odometer_photo_bytes" json:"odometer_photo_bytes"`
}

// Time returns ReceivedAt as a time.Time.
func (e Entry) Time() time.Time {
	return time.UnixMilli(e.ReceivedAt)
}

// Ledger holds entries in memory and rewrites the file on every append.
// An empty path keeps everything in memory.
type Ledger struct {
	path string

	mu      sync.Mutex
	entries []Entry
}

// Open loads path if it exists.
func Open(path string) (*Ledger, error) {
	l := &Ledger{path: path}
	if path == "" {
		return l, nil
	}
	entries, err := Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, err
	}
	l.entries = entries
	slog.Debug("Ledger loaded", "path", path, "entries", len(entries))
	return l, nil
}

func (l *Ledger) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, e)
	if l.path == "" {
		return nil
	}
	if err := write(l.path, l.entries); err != nil {
		l.entries = l.entries[:len(l.entries)-1]
		return err
	}
	return nil
}

func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// write replaces path atomically. The temporary file is removed on failure.
func write(path string, entries []Entry) (err error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create ledger file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	w := parquet.NewGenericWriter[Entry](f)
	if _, err := w.Write(entries); err != nil {
		return fmt.Errorf("failed to write ledger rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close ledger writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close ledger file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace ledger file: %w", err)
	}
	return nil
}

// Read loads every entry from a ledger file.
func Read(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[Entry](pf)
	defer reader.Close()

	var entries []Entry
	rows := make([]Entry, 128)
	for {
		n, err := reader.Read(rows)
		entries = append(entries, rows[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger rows: %w", err)
		}
	}

	slog.Debug("Read ledger", "path", path, "rows", pf.NumRows(), "entries", len(entries))
	return entries, nil
}
