package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundlink-io/groundlink/internal/gcsd/event"
	"github.com/groundlink-io/groundlink/internal/gcsd/session"
)

func packet(id, missionTime string) []byte {
	fields := []string{
		id, "1000", missionTime, "42",
		"AUTO", "ASCENT",
		"120.5", "21.3", "1002.1", "11.8",
		"0.1", "0.2", "0.3",
		"0.01", "0.02", "9.81",
		"0.4", "0.5", "0.6",
		"12:00:05", "118.9",
		"51.450100", "5.453000",
		"9", "87", "92", "AUTONAV", "0", "READY",
		"0", "NONE", "0.0", "0.0", "0.0",
		"CMD_TAKEOFF",
	}
	return []byte(strings.Join(fields, ","))
}

func TestRecorderWritesMissionLog(t *testing.T) {
	dir := t.TempDir()

	sess := session.New(session.DefaultConfig())
	require.NoError(t, sess.Start(context.Background()))

	rec := New(dir, sess)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Start(ctx) }()

	// Wait for the recorder to attach before producing events.
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(dir)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)

	for i := 0; i < 5; i++ {
		_, err := sess.Ingest(packet("scout-1", fmt.Sprintf("00:01:%02d", i)))
		require.NoError(t, err)
	}
	require.NoError(t, sess.Stop(context.Background()))

	cancel()
	require.NoError(t, <-done)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "mission-"))
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".jsonl"))

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	defer f.Close()

	counts := make(map[event.Kind]int)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev event.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev), "every log line must be valid JSON")
		counts[ev.Kind]++
	}
	require.NoError(t, scanner.Err())

	assert.Equal(t, 5, counts[event.KindStateChanged])
	assert.Equal(t, 1, counts[event.KindVehicleRegistered])
	assert.Equal(t, 1, counts[event.KindSessionStateChanged], "the recorder attached after session start, before session end")
}
