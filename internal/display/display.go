// Package display owns the append-only record of every frame sent or
// received on the link, in both text and hex form.
package display

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Direction tags a record as outbound or inbound.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Record is one logged frame.
type Record struct {
	Seq       uint64    `json:"seq"`
	Direction Direction `json:"direction"`
	Text      string    `json:"text"`
	Hex       string    `json:"hex"`
	Peer      string    `json:"peer,omitempty"`
	At        time.Time `json:"at"`
}

// Options configures the durable backing file. An empty Path keeps the log in memory.
type Options struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// Log is safe for concurrent use; appends are serialized.
type Log struct {
	mu      sync.RWMutex
	records []Record
	seq     uint64
	out     *lumberjack.Logger
	path    string

	subsMu sync.Mutex
	subs   map[int]chan Record
	nextID int
}

// NewMemoryLog returns a log without a backing file.
func NewMemoryLog() *Log {
	return &Log{subs: make(map[int]chan Record)}
}

// backupTimeFormat is the timestamp lumberjack embeds in rotated file names.
const backupTimeFormat = "2006-01-02T15-04-05.000"

// Open replays records from the rotated backups of opts.Path, oldest first,
// then from opts.Path itself, and appends new records to it.
func Open(opts Options) (*Log, error) {
	l := NewMemoryLog()
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return l, nil
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("display: create log dir: %w", err)
		}
	}
	backups, err := backupFiles(path)
	if err != nil {
		return nil, err
	}
	for _, name := range append(backups, path) {
		if err := l.replay(name); err != nil {
			return nil, err
		}
	}
	l.path = path
	l.out = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    max(opts.MaxSizeMB, 1),
		MaxBackups: max(opts.MaxBackups, 1),
	}
	return l, nil
}

func (l *Log) replay(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("display: open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			log.Warn().Str("path", path).Int("line", line).Err(err).Msg("display.Log.replay skipping corrupt record")
			continue
		}
		l.records = append(l.records, rec)
		if rec.Seq > l.seq {
			l.seq = rec.Seq
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("display: replay %s: %w", path, err)
	}
	return nil
}

// backupFiles lists the rotated siblings of path that lumberjack wrote,
// ordered oldest first.
func backupFiles(path string) ([]string, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext) + "-"

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("display: list %s: %w", dir, err)
	}
	type backup struct {
		path string
		at   time.Time
	}
	var found []backup
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) <= len(prefix)+len(ext) ||
			!strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		at, err := time.Parse(backupTimeFormat, name[len(prefix):len(name)-len(ext)])
		if err != nil {
			continue
		}
		found = append(found, backup{path: filepath.Join(dir, name), at: at})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].at.Before(found[j].at) })
	out := make([]string, len(found))
	for i, b := range found {
		out[i] = b.path
	}
	return out, nil
}

// Append assigns sequence and timestamp, stores the record, and persists it.
func (l *Log) Append(rec Record) Record {
	l.mu.Lock()
	l.seq++
	rec.Seq = l.seq
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	l.records = append(l.records, rec)
	if l.out != nil {
		if err := l.persist(rec); err != nil {
			log.Warn().Str("path", l.path).Uint64("seq", rec.Seq).Err(err).Msg("display.Log.Append persist failed")
		}
	}
	l.mu.Unlock()

	l.publish(rec)
	return rec
}

func (l *Log) persist(rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	_, err = l.out.Write(raw)
	return err
}

// Records returns the most recent limit records in append order; limit <= 0 returns all.
func (l *Log) Records(limit int) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := 0
	if limit > 0 && len(l.records) > limit {
		start = len(l.records) - limit
	}
	out := make([]Record, len(l.records)-start)
	copy(out, l.records[start:])
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Clear drops every record, truncates the backing file, and removes its
// rotated backups so a restart replays nothing.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
	if l.out == nil {
		return nil
	}
	if err := l.out.Close(); err != nil {
		return fmt.Errorf("display: close %s: %w", l.path, err)
	}
	if err := os.Truncate(l.path, 0); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("display: truncate %s: %w", l.path, err)
	}
	backups, err := backupFiles(l.path)
	if err != nil {
		return err
	}
	for _, name := range backups {
		if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("display: remove backup %s: %w", name, err)
		}
	}
	return nil
}

// Subscribe streams appended records. Slow subscribers drop records rather
// than stall the link.
func (l *Log) Subscribe(buffer int) (<-chan Record, func()) {
	ch := make(chan Record, max(buffer, 1))
	l.subsMu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = ch
	l.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.subsMu.Lock()
			delete(l.subs, id)
			l.subsMu.Unlock()
			close(ch)
		})
	}
}

func (l *Log) publish(rec Record) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- rec:
		default:
		}
	}
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil {
		return nil
	}
	return l.out.Close()
}
