package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundlink-io/groundlink/internal/gcsd/event"
	"github.com/groundlink-io/groundlink/internal/gcsd/geofence"
	"github.com/groundlink-io/groundlink/internal/gcsd/session"
	"github.com/groundlink-io/groundlink/internal/gcsd/state"
	"github.com/groundlink-io/groundlink/internal/gcsd/telemetry"
	"github.com/groundlink-io/groundlink/pkg/options"
)

func packet(id, missionTime string, lat, lon float64) []byte {
	fields := []string{
		id, "1000", missionTime, "42",
		"AUTO", "ASCENT",
		"120.5", "21.3", "1002.1", "11.8",
		"0.1", "0.2", "0.3",
		"0.01", "0.02", "9.81",
		"0.4", "0.5", "0.6",
		"12:00:05", "118.9",
		fmt.Sprintf("%.6f", lat), fmt.Sprintf("%.6f", lon),
		"9", "87", "92", "AUTONAV", "0", "READY",
		"0", "NONE", "0.0", "0.0", "0.0",
		"CMD_TAKEOFF",
	}
	return []byte(strings.Join(fields, ","))
}

func testServer(t *testing.T, start bool) (*httptest.Server, *session.Session) {
	t.Helper()
	sess := session.New(session.DefaultConfig())
	if start {
		require.NoError(t, sess.Start(context.Background()))
	}
	srv := NewServer(options.NewHttpOptions(), sess)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, sess
}

func TestProbes(t *testing.T) {
	ts, sess := testServer(t, false)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Not ready until the session is active.
	resp, err = http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	require.NoError(t, sess.Start(context.Background()))
	resp, err = http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSnapshotAndVehicle(t *testing.T) {
	ts, sess := testServer(t, true)

	_, err := sess.Ingest(packet("scout-1", "00:01:00", 51.45, 5.45))
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/v1/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap map[telemetry.VehicleID]state.VehicleView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Contains(t, snap, telemetry.VehicleID("scout-1"))
	assert.Equal(t, 87.0, snap["scout-1"].LastSample.BatteryPercent)

	resp, err = http.Get(ts.URL + "/api/v1/vehicles/scout-1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/v1/vehicles/ghost")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	ts, _ := testServer(t, false)

	resp, err := http.Post(ts.URL+"/api/v1/session/start", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Starting twice is a conflict.
	resp, err = http.Post(ts.URL+"/api/v1/session/start", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/v1/session/stop", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, session.StateEnded, out["state"])
}

func TestGeofenceEndpoints(t *testing.T) {
	ts, _ := testServer(t, true)

	resp, err := http.Get(ts.URL + "/api/v1/geofence")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	def := geofence.Definition{
		Polygons: []geofence.Polygon{{
			Name: "ops-area",
			Kind: geofence.Inclusion,
			Vertices: []geofence.Vertex{
				{Latitude: 51.40, Longitude: 5.40},
				{Latitude: 51.40, Longitude: 5.50},
				{Latitude: 51.50, Longitude: 5.50},
				{Latitude: 51.50, Longitude: 5.40},
			},
		}},
	}
	body, err := json.Marshal(def)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/v1/geofence", bytes.NewReader(body))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/v1/geofence")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got geofence.Definition
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got.Polygons, 1)
	assert.Equal(t, "ops-area", got.Polygons[0].Name)

	// A degenerate polygon is rejected.
	bad := bytes.NewReader([]byte(`{"polygons":[{"kind":"inclusion","vertices":[]}]}`))
	req, err = http.NewRequest(http.MethodPut, ts.URL+"/api/v1/geofence", bad)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEventFeed(t *testing.T) {
	ts, sess := testServer(t, true)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/events?kind=state_changed"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The bus subscription registers just after the handshake completes.
	time.Sleep(100 * time.Millisecond)

	const n = 5
	for i := 0; i < n; i++ {
		_, err = sess.Ingest(packet("scout-1", fmt.Sprintf("00:01:%02d", i), 51.45, 5.45))
		require.NoError(t, err)
	}

	// Frames arrive straight off the bus subscriber, in publish order.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < n; i++ {
		var ev event.Event
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, event.KindStateChanged, ev.Kind)
		assert.Equal(t, telemetry.VehicleID("scout-1"), ev.VehicleID)
		require.NotNil(t, ev.State)
		require.NotNil(t, ev.State.Sample)
		assert.Equal(t, time.Duration(60+i)*time.Second, ev.State.Sample.Timestamp)
	}
}
