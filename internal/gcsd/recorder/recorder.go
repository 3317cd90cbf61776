// Package recorder appends every mission event to a newline-delimited
// JSON log file, giving each mission a replayable on-disk record.
package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/groundlink-io/groundlink/internal/gcsd/event"
	"github.com/groundlink-io/groundlink/internal/gcsd/session"
	"github.com/groundlink-io/groundlink/pkg/log"
)

const (
	subscriberName = "mission-recorder"
	flushInterval  = time.Second
)

// Recorder is a session bus subscriber writing the mission event log.
type Recorder struct {
	dir  string
	sess *session.Session

	mu  sync.Mutex
	out *bufio.Writer
	f   *os.File
}

func New(dir string, sess *session.Session) *Recorder {
	return &Recorder{dir: dir, sess: sess}
}

// Start opens a timestamped log file, attaches to the bus and blocks
// until ctx is cancelled. Everything delivered before the session bus
// flushes on Stop ends up in the file.
func (r *Recorder) Start(ctx context.Context) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create mission log dir: %w", err)
	}
	name := filepath.Join(r.dir, "mission-"+time.Now().UTC().Format("20060102-150405")+".jsonl")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open mission log: %w", err)
	}
	r.mu.Lock()
	r.f = f
	r.out = bufio.NewWriter(f)
	r.mu.Unlock()

	if err := r.sess.Subscribe(subscriberName, 1024, nil, r.record); err != nil {
		f.Close()
		return err
	}
	log.Info("Mission recorder started", "file", name)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.flush()
		case <-ctx.Done():
			// Drain queued events before closing the file.
			r.sess.Unsubscribe(subscriberName)
			return r.close()
		}
	}
}

func (r *Recorder) record(ev event.Event) {
	line, err := json.Marshal(ev)
	if err != nil {
		log.Error(err, "Failed to marshal event for mission log", "kind", ev.Kind)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out == nil {
		return
	}
	r.out.Write(line)
	r.out.WriteByte('\n')
}

func (r *Recorder) flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out != nil {
		if err := r.out.Flush(); err != nil {
			log.Error(err, "Failed to flush mission log")
		}
	}
}

func (r *Recorder) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out == nil {
		return nil
	}
	flushErr := r.out.Flush()
	closeErr := r.f.Close()
	r.out = nil
	r.f = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
