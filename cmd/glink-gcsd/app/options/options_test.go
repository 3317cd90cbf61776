package options

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fenceYAML = `polygons:
  - name: ops-area
    kind: inclusion
    vertices:
      - latitude: 51.40
        longitude: 5.40
      - latitude: 51.40
        longitude: 5.50
      - latitude: 51.50
        longitude: 5.50
      - latitude: 51.50
        longitude: 5.40
`

func TestDefaultsValidate(t *testing.T) {
	o := NewGcsdOptions()
	assert.Empty(t, o.Validate())

	cfg, err := o.Config()
	require.NoError(t, err)
	assert.True(t, cfg.AutoStart)
	assert.Nil(t, cfg.Session.Geofence)
	assert.Equal(t, 3*time.Second, cfg.Session.StaleAfter)
	assert.Equal(t, 200, cfg.Session.HistoryCapacity)
}

func TestValidateAggregatesErrors(t *testing.T) {
	o := NewGcsdOptions()
	o.Session.StaleAfter = time.Minute // longer than lost-after
	o.Session.HistoryCapacity = -1
	errs := o.Validate()
	assert.Len(t, errs, 2)
}

func TestConfigLoadsGeofenceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fence.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fenceYAML), 0o644))

	o := NewGcsdOptions()
	o.Session.GeofenceFile = path
	cfg, err := o.Config()
	require.NoError(t, err)
	require.NotNil(t, cfg.Session.Geofence)
	require.Len(t, cfg.Session.Geofence.Polygons, 1)
	assert.Equal(t, "ops-area", cfg.Session.Geofence.Polygons[0].Name)
	assert.Len(t, cfg.Session.Geofence.Polygons[0].Vertices, 4)
}

func TestConfigRejectsBrokenGeofenceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fence.yaml")
	require.NoError(t, os.WriteFile(path, []byte("polygons:\n  - kind: inclusion\n    vertices: []\n"), 0o644))

	o := NewGcsdOptions()
	o.Session.GeofenceFile = path
	_, err := o.Config()
	assert.Error(t, err)
}
