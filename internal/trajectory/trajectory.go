// Package trajectory implements the trajectory builder (component F): it
// turns a mid's raw heartbeat history into a GeoJSON FeatureCollection ready
// for direct UI rendering.
package trajectory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/subseactl/fleetd/pkg/db/store"
)

// clockSkewTolerance is the default mismatch tolerance between a
// heartbeat's self-reported ts_utc and the server's received_at before
// received_at is preferred and the frame is tagged clock_skew.
const clockSkewTolerance = time.Hour

// diveStates is the fixed set of state names treated as in-dive for frames
// that fall outside every closed Dive's window (see markDiveMembership);
// frames inside a window are marked from the Dive row alone.
var diveStates = map[string]bool{
	"DESCENT_CHECK": true,
	"DESCENDING":    true,
	"AT_DEPTH":      true,
	"ASCENDING":     true,
}

type position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type frame struct {
	seq       int64
	ts        time.Time
	clockSkew bool
	state     string
	inDive    bool
	pos       position
	hasPos    bool
	raw       map[string]interface{}
}

// Builder assembles FeatureCollections from a mid's heartbeat history plus
// the authoritative Dive records for that window.
type Builder struct {
	store store.Querier
}

func New(q store.Querier) *Builder {
	return &Builder{store: q}
}

// Build returns the trajectory FeatureCollection for mid within [from, to].
// When detailed is true, one additional Point Feature per heartbeat is
// emitted with its full payload flattened into properties.
func (b *Builder) Build(ctx context.Context, mid string, from, to time.Time, detailed bool) (*geojson.FeatureCollection, error) {
	hbs, err := b.store.ListHeartbeatsForTrajectory(ctx, store.ListHeartbeatsForTrajectoryParams{
		MID:  mid,
		From: store.ToTimestamptz(from),
		To:   store.ToTimestamptz(to),
	})
	if err != nil {
		return nil, fmt.Errorf("trajectory: list heartbeats: %w", err)
	}

	dives, err := b.store.ListDivesForMID(ctx, mid, store.ToTimestamptz(from), store.ToTimestamptz(to))
	if err != nil {
		return nil, fmt.Errorf("trajectory: list dives: %w", err)
	}

	frames := make([]frame, 0, len(hbs))
	for _, hb := range hbs {
		f := toFrame(hb)
		if !f.hasPos {
			continue
		}
		frames = append(frames, f)
	}

	markDiveMembership(frames, dives)

	fc := geojson.NewFeatureCollection()

	for _, seg := range segment(frames) {
		// A dive segment whose frames fall inside a closed Dive's window is
		// rendered by diveFeatures below instead, so each frame lands in
		// exactly one LineString. A dive still in progress has no Dive row
		// yet, so its segment is the only representation and keeps the
		// "dive_segment" type rather than masquerading as a resolved dive.
		if seg.isDive && coveredByClosedDive(seg.frames, dives) {
			continue
		}

		line := orb.LineString{}
		for _, f := range seg.frames {
			line = append(line, orb.Point{f.pos.Lon, f.pos.Lat})
		}
		if len(line) == 0 {
			continue
		}
		feat := geojson.NewFeature(line)
		feat.Properties["type"] = "trajectory"
		if seg.isDive {
			feat.Properties["type"] = "dive_segment"
		}
		fc.Append(feat)
	}

	for _, d := range dives {
		diveFeatures(fc, d, frames)
	}

	if last := lastPosition(frames); last != nil {
		feat := geojson.NewFeature(orb.Point{last.pos.Lon, last.pos.Lat})
		feat.Properties["type"] = "current"
		fc.Append(feat)
	}

	if detailed {
		for _, f := range frames {
			feat := geojson.NewFeature(orb.Point{f.pos.Lon, f.pos.Lat})
			feat.Properties["type"] = "heartbeat"
			feat.Properties["hb_seq"] = f.seq
			feat.Properties["state"] = f.state
			if f.clockSkew {
				feat.Properties["clock_skew"] = true
			}
			for k, v := range f.raw {
				feat.Properties[k] = v
			}
			fc.Append(feat)
		}
	}

	return fc, nil
}

func toFrame(hb store.Heartbeat) frame {
	f := frame{seq: hb.HbSeq, state: "", raw: map[string]interface{}{}}

	var payload map[string]interface{}
	if err := json.Unmarshal(hb.Payload, &payload); err == nil {
		f.raw = payload
		if s, ok := payload["state"].(string); ok {
			f.state = s
		}
		if p, ok := payload["position"].(map[string]interface{}); ok {
			lat, latOK := p["lat"].(float64)
			lon, lonOK := p["lon"].(float64)
			if latOK && lonOK && !(lat == 0 && lon == 0) {
				f.pos = position{Lat: lat, Lon: lon}
				f.hasPos = true
			}
		}
	}

	f.ts, f.clockSkew = resolveTime(hb)
	return f
}

// resolveTime prefers ts_utc, falling back to received_at and tagging
// clock_skew when the two diverge beyond tolerance (§4.6 time semantics).
func resolveTime(hb store.Heartbeat) (time.Time, bool) {
	ts := hb.TsUTC.Time
	received := hb.ReceivedAt.Time

	if !hb.TsUTC.Valid {
		return received, false
	}
	if !hb.ReceivedAt.Valid {
		return ts, false
	}

	diff := ts.Sub(received)
	if diff < 0 {
		diff = -diff
	}
	if diff > clockSkewTolerance {
		return received, true
	}
	return ts, false
}

type segmentT struct {
	frames []frame
	isDive bool
}

// segment splits ascending-by-hb_seq frames into surface/dive runs. A state
// change that would produce a single-frame segment merges into its
// neighbor, so isolated transitional frames don't fragment the line.
func segment(frames []frame) []segmentT {
	if len(frames) == 0 {
		return nil
	}

	var raw []segmentT
	cur := segmentT{isDive: frames[0].inDive, frames: []frame{frames[0]}}
	for _, f := range frames[1:] {
		isDive := f.inDive
		if isDive == cur.isDive {
			cur.frames = append(cur.frames, f)
			continue
		}
		raw = append(raw, cur)
		cur = segmentT{isDive: isDive, frames: []frame{f}}
	}
	raw = append(raw, cur)

	return mergeSingleFrameSegments(raw)
}

func mergeSingleFrameSegments(segs []segmentT) []segmentT {
	changed := true
	for changed {
		changed = false
		for i, s := range segs {
			if len(s.frames) != 1 || len(segs) < 2 {
				continue
			}
			if i > 0 {
				segs[i-1].frames = append(segs[i-1].frames, s.frames...)
			} else {
				segs[1].frames = append(s.frames, segs[1].frames...)
			}
			segs = append(segs[:i], segs[i+1:]...)
			changed = true
			break
		}
	}
	return segs
}

// markDiveMembership decides, per frame, whether it belongs to a dive
// segment. A frame inside a closed Dive's [started_at, ended_at] window is
// authoritative; a dive still in progress has no Dive row yet, so frames
// fall back to the state-name heuristic in diveStates.
func markDiveMembership(frames []frame, dives []store.Dive) {
	for i := range frames {
		f := &frames[i]
		for _, d := range dives {
			if !f.ts.Before(d.StartedAt.Time) && !f.ts.After(d.EndedAt.Time) {
				f.inDive = true
				break
			}
		}
		if !f.inDive {
			f.inDive = diveStates[f.state]
		}
	}
}

func diveFeatures(fc *geojson.FeatureCollection, d store.Dive, frames []frame) {
	var diveFrames []frame
	for _, f := range frames {
		if !f.ts.Before(d.StartedAt.Time) && !f.ts.After(d.EndedAt.Time) {
			diveFrames = append(diveFrames, f)
		}
	}
	if len(diveFrames) == 0 {
		return
	}

	line := orb.LineString{}
	maxDepth := 0.0
	for _, f := range diveFrames {
		line = append(line, orb.Point{f.pos.Lon, f.pos.Lat})
		if depth, ok := frameDepth(f); ok && depth > maxDepth {
			maxDepth = depth
		}
	}

	diveID := store.UUIDString(d.ID)
	duration := d.EndedAt.Time.Sub(d.StartedAt.Time).Seconds()

	lineFeat := geojson.NewFeature(line)
	lineFeat.Properties["type"] = "dive"
	lineFeat.Properties["dive_id"] = diveID
	lineFeat.Properties["max_depth_m"] = maxDepth
	lineFeat.Properties["duration_s"] = duration
	lineFeat.Properties["started_at"] = d.StartedAt.Time
	fc.Append(lineFeat)

	start := diveFrames[0]
	end := diveFrames[len(diveFrames)-1]

	startFeat := geojson.NewFeature(orb.Point{start.pos.Lon, start.pos.Lat})
	startFeat.Properties["type"] = "dive_marker"
	startFeat.Properties["marker_type"] = "start"
	startFeat.Properties["dive_id"] = diveID
	fc.Append(startFeat)

	endFeat := geojson.NewFeature(orb.Point{end.pos.Lon, end.pos.Lat})
	endFeat.Properties["type"] = "dive_marker"
	endFeat.Properties["marker_type"] = "end"
	endFeat.Properties["dive_id"] = diveID
	fc.Append(endFeat)
}

// coveredByClosedDive reports whether every frame in segFrames falls inside
// some closed dive's [started_at, ended_at] window.
func coveredByClosedDive(segFrames []frame, dives []store.Dive) bool {
	for _, f := range segFrames {
		covered := false
		for _, d := range dives {
			if !f.ts.Before(d.StartedAt.Time) && !f.ts.After(d.EndedAt.Time) {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return len(segFrames) > 0
}

// frameDepth reads depth_m from a heartbeat's nested environment object
// (spec wire shape: {"environment":{"depth_m":float,...}}), not the frame
// top level.
func frameDepth(f frame) (float64, bool) {
	env, ok := f.raw["environment"].(map[string]interface{})
	if !ok {
		return 0, false
	}
	depth, ok := env["depth_m"].(float64)
	return depth, ok
}

func lastPosition(frames []frame) *frame {
	if len(frames) == 0 {
		return nil
	}
	return &frames[len(frames)-1]
}
