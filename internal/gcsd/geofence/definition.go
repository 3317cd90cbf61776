package geofence

import (
	"fmt"
	"math"

	"github.com/groundlink-io/groundlink/internal/gcsd/telemetry"
)

// Kind tags a polygon with its containment semantics.
type Kind string

const (
	// Inclusion fences must contain the vehicle.
	Inclusion Kind = "inclusion"

	// Exclusion fences must not contain the vehicle.
	Exclusion Kind = "exclusion"
)

// Vertex is one polygon corner in geographic coordinates.
type Vertex struct {
	Latitude  float64 `json:"latitude" mapstructure:"latitude"`
	Longitude float64 `json:"longitude" mapstructure:"longitude"`
}

// Polygon is one simple (non-self-intersecting) fence polygon.
type Polygon struct {
	Name     string   `json:"name" mapstructure:"name"`
	Kind     Kind     `json:"kind" mapstructure:"kind"`
	Vertices []Vertex `json:"vertices" mapstructure:"vertices"`
}

// Definition is the complete, immutable fence set of a mission. It is
// replaced wholesale, never mutated, so evaluation never sees a
// half-updated fence.
type Definition struct {
	Polygons []Polygon `json:"polygons" mapstructure:"polygons"`
}

// Validate checks the definition at session start. An invalid fence is a
// configuration error and must fail the start, never default silently.
func (d *Definition) Validate() error {
	for i := range d.Polygons {
		p := &d.Polygons[i]
		if p.Kind != Inclusion && p.Kind != Exclusion {
			return fmt.Errorf("polygon %q: invalid kind %q", p.Name, p.Kind)
		}
		if len(p.Vertices) < 3 {
			return fmt.Errorf("polygon %q: needs at least 3 vertices, has %d", p.Name, len(p.Vertices))
		}
		for j, v := range p.Vertices {
			if math.IsNaN(v.Latitude) || math.IsInf(v.Latitude, 0) ||
				math.IsNaN(v.Longitude) || math.IsInf(v.Longitude, 0) {
				return fmt.Errorf("polygon %q: vertex %d is not finite", p.Name, j)
			}
			if v.Latitude < -90 || v.Latitude > 90 || v.Longitude < -180 || v.Longitude > 180 {
				return fmt.Errorf("polygon %q: vertex %d outside geographic range", p.Name, j)
			}
		}
		if selfIntersects(p.Vertices) {
			return fmt.Errorf("polygon %q: self-intersecting", p.Name)
		}
	}
	return nil
}

// hasInclusion reports whether any polygon is an inclusion fence.
func (d *Definition) hasInclusion() bool {
	for i := range d.Polygons {
		if d.Polygons[i].Kind == Inclusion {
			return true
		}
	}
	return false
}

// contains performs a ray-casting point-in-polygon test with longitude as x
// and latitude as y. Points exactly on an edge may land on either side;
// callers handle the boundary with the epsilon band instead.
func (p *Polygon) contains(pos telemetry.Position) bool {
	inside := false
	n := len(p.Vertices)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := p.Vertices[i], p.Vertices[j]
		if (vi.Latitude > pos.Latitude) != (vj.Latitude > pos.Latitude) {
			x := (vj.Longitude-vi.Longitude)*(pos.Latitude-vi.Latitude)/
				(vj.Latitude-vi.Latitude) + vi.Longitude
			if pos.Longitude < x {
				inside = !inside
			}
		}
	}
	return inside
}

// boundaryDistanceM returns the distance in metres from pos to the nearest
// polygon edge, using an equirectangular approximation. The error is
// negligible at fence scale (hundreds of metres to a few kilometres).
func (p *Polygon) boundaryDistanceM(pos telemetry.Position) float64 {
	best := math.Inf(1)
	n := len(p.Vertices)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		d := segmentDistanceM(pos, p.Vertices[j], p.Vertices[i])
		if d < best {
			best = d
		}
	}
	return best
}

const metersPerDegree = 111320.0

// segmentDistanceM returns the metre distance from pos to the segment a-b,
// projecting degrees onto a local flat plane around pos.
func segmentDistanceM(pos telemetry.Position, a, b Vertex) float64 {
	latScale := math.Cos(pos.Latitude * math.Pi / 180)

	ax := (a.Longitude - pos.Longitude) * latScale * metersPerDegree
	ay := (a.Latitude - pos.Latitude) * metersPerDegree
	bx := (b.Longitude - pos.Longitude) * latScale * metersPerDegree
	by := (b.Latitude - pos.Latitude) * metersPerDegree

	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(ax, ay)
	}

	// Closest point on the segment to the origin (= pos).
	t := -(ax*dx + ay*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return math.Hypot(ax+t*dx, ay+t*dy)
}

// selfIntersects reports whether any two non-adjacent edges cross. O(n^2)
// is fine for mission fences, which have tens of vertices at most.
func selfIntersects(vs []Vertex) bool {
	n := len(vs)
	for i := 0; i < n; i++ {
		a1, a2 := vs[i], vs[(i+1)%n]
		for j := i + 1; j < n; j++ {
			// Skip adjacent edges, which always share a vertex.
			if j == i || (j+1)%n == i || (i+1)%n == j {
				continue
			}
			b1, b2 := vs[j], vs[(j+1)%n]
			if segmentsCross(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

func segmentsCross(a1, a2, b1, b2 Vertex) bool {
	d1 := cross(b1, b2, a1)
	d2 := cross(b1, b2, a2)
	d3 := cross(a1, a2, b1)
	d4 := cross(a1, a2, b2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func cross(o, a, b Vertex) float64 {
	return (a.Longitude-o.Longitude)*(b.Latitude-o.Latitude) -
		(a.Latitude-o.Latitude)*(b.Longitude-o.Longitude)
}
