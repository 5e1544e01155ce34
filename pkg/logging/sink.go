// Package logging persists bus log events as JSONL files, one file per
// run. The bus stays the source of truth; this is a downstream subscriber,
// so dropping it never affects in-memory log delivery.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/odvcencio/tether/pkg/bus"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Meets reports whether l is at or above min severity. Unknown levels pass.
func (l Level) Meets(min Level) bool {
	lr, ok := levelRank[l]
	if !ok {
		return true
	}
	mr, ok := levelRank[min]
	if !ok {
		return true
	}
	return lr >= mr
}

// Sink writes log events below it to disk as JSONL.
type Sink struct {
	mu       sync.Mutex
	file     *os.File
	minLevel Level
	subID    string
	bus      *bus.Bus
}

// NewSink opens a run-stamped JSONL file under dir and subscribes to the
// bus's log channel, filtering entries below minLevel.
func NewSink(b *bus.Bus, dir string, minLevel Level) (*Sink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	name := fmt.Sprintf("tether-%s.jsonl", time.Now().UTC().Format("20060102-150405"))
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	if minLevel == "" {
		minLevel = LevelInfo
	}
	s := &Sink{
		file:     file,
		minLevel: minLevel,
		bus:      b,
	}
	s.subID = b.SubscribeLog(s.handle)
	return s, nil
}

// Path returns the log file path.
func (s *Sink) Path() string {
	return s.file.Name()
}

// Close detaches from the bus and closes the file.
func (s *Sink) Close() error {
	s.bus.Unsubscribe(s.subID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func (s *Sink) handle(ev bus.LogEvent) {
	if !Level(ev.Level).Meets(s.minLevel) {
		return
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.Write(append(line, '\n'))
}
