// Package sfmdata holds the incrementally growing state of a structure from
// motion reconstruction: the cameras, their pairwise relationships, the
// candidate 3D points and, per point, which cameras' observations have
// already been used and which are still pending.
package sfmdata

import (
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/reconstrukt/sfm/utils"
)

// NViewMatch links observations of one physical feature across cameras,
// mapping camera index to the index of that camera's keypoint. A camera
// appears at most once per track.
type NViewMatch map[int]int

// Clone returns an independent copy of the match.
func (m NViewMatch) Clone() NViewMatch {
	out := make(NViewMatch, len(m))
	for cam, key := range m {
		out[cam] = key
	}
	return out
}

// SplitNViewMatch is a track partitioned into the observations already used
// for a point and those not yet incorporated.
type SplitNViewMatch struct {
	Observed   NViewMatch
	Unobserved NViewMatch
}

// PointData tracks, for one reconstructed point, which cameras' observations
// have been used (Reconstructed) and which are pending (ToReconstruct). The
// two maps are disjoint at every call boundary.
type PointData struct {
	Reconstructed NViewMatch
	ToReconstruct NViewMatch
}

func (d PointData) clone() PointData {
	return PointData{
		Reconstructed: d.Reconstructed.Clone(),
		ToReconstruct: d.ToReconstruct.Clone(),
	}
}

// Points owns the candidate 3D points of a reconstruction and the list of
// pending tracks awaiting triangulation. Not safe for concurrent use.
type Points struct {
	tracks []NViewMatch
	coords []r3.Vector
	data   []PointData
}

// Tracks returns the pending tracks awaiting triangulation. The slice is
// shared; callers may mutate it through SetTracks.
func (p *Points) Tracks() []NViewMatch { return p.tracks }

// SetTracks replaces the pending-track list.
func (p *Points) SetTracks(tracks []NViewMatch) { p.tracks = tracks }

// NumPoints returns the number of reconstructed points.
func (p *Points) NumPoints() int { return len(p.coords) }

// Coords returns the point coordinates. The slice is shared with the Points
// so an external solver can refine coordinates in place.
func (p *Points) Coords() []r3.Vector { return p.coords }

// Coord returns the i-th point coordinate.
func (p *Points) Coord(i int) r3.Vector { return p.coords[i] }

// SetCoord overwrites the i-th point coordinate.
func (p *Points) SetCoord(i int, coord r3.Vector) { p.coords[i] = coord }

// Data returns the per-point observation bookkeeping, shared with the Points.
func (p *Points) Data() []PointData { return p.data }

// AddPoints creates one point per coordinate from a batch triangulated from
// the camera pair (camIdx1, camIdx2). The i-th point is seeded from the
// pending track at trackIdxs[i]: the two seed cameras' observations become
// Reconstructed, the rest of the track becomes ToReconstruct. The consumed
// tracks are removed from the pending list. Every referenced track must
// contain both seed cameras; a violation panics.
func (p *Points) AddPoints(camIdx1, camIdx2 int, trackIdxs []int, coords []r3.Vector) {
	if len(trackIdxs) != len(coords) {
		panic(fmt.Sprintf("sfmdata: %d track indices for %d coordinates", len(trackIdxs), len(coords)))
	}
	for i, coord := range coords {
		track := p.tracks[trackIdxs[i]]
		key1, ok1 := track[camIdx1]
		key2, ok2 := track[camIdx2]
		if !ok1 || !ok2 {
			panic(fmt.Sprintf("sfmdata: track %d does not observe both seed cameras %d and %d",
				trackIdxs[i], camIdx1, camIdx2))
		}
		toReconstruct := track.Clone()
		delete(toReconstruct, camIdx1)
		delete(toReconstruct, camIdx2)
		p.coords = append(p.coords, coord)
		p.data = append(p.data, PointData{
			Reconstructed: NViewMatch{camIdx1: key1, camIdx2: key2},
			ToReconstruct: toReconstruct,
		})
	}
	p.tracks = utils.RemoveIndices(trackIdxs, p.tracks)
}

// AddPointsSplit ingests points whose observed/unobserved partition was
// already computed externally, e.g. by a multi-view initialization. The
// partitions are copied.
func (p *Points) AddPointsSplit(coords []r3.Vector, views []SplitNViewMatch) {
	if len(views) != len(coords) {
		panic(fmt.Sprintf("sfmdata: %d view splits for %d coordinates", len(views), len(coords)))
	}
	for i, coord := range coords {
		p.coords = append(p.coords, coord)
		p.data = append(p.data, PointData{
			Reconstructed: views[i].Observed.Clone(),
			ToReconstruct: views[i].Unobserved.Clone(),
		})
	}
}

// RemovePoints compacts the coordinate and bookkeeping lists in lockstep,
// keeping only the points whose keep entry is true and preserving relative
// order.
func (p *Points) RemovePoints(keep []bool) {
	p.coords = utils.FilterSlice(keep, p.coords)
	p.data = utils.FilterSlice(keep, p.data)
}

// MarkCamAsReconstructed promotes the camera's pending observation to
// Reconstructed for every point that holds one.
func (p *Points) MarkCamAsReconstructed(camIdx int) {
	for i := range p.data {
		if key, ok := p.data[i].ToReconstruct[camIdx]; ok {
			p.data[i].Reconstructed[camIdx] = key
			delete(p.data[i].ToReconstruct, camIdx)
		}
	}
}

// MarkCamAsReconstructedSelective promotes the camera's pending observation
// only for the points at correspondingPoints[idx] for each idx in inliers,
// but removes the camera from ToReconstruct for every listed point. An
// outlier observation is therefore discarded permanently rather than left
// pending: re-queuing it would only feed a known-bad correspondence to the
// next resection round. Promoting a point with no pending observation for
// the camera panics.
func (p *Points) MarkCamAsReconstructedSelective(camIdx int, correspondingPoints, inliers []int) {
	for _, inlierIdx := range inliers {
		ptIdx := correspondingPoints[inlierIdx]
		entry := &p.data[ptIdx]
		key, ok := entry.ToReconstruct[camIdx]
		if !ok {
			panic(fmt.Sprintf("sfmdata: point %d has no pending observation for camera %d", ptIdx, camIdx))
		}
		entry.Reconstructed[camIdx] = key
	}
	for _, ptIdx := range correspondingPoints {
		delete(p.data[ptIdx].ToReconstruct, camIdx)
	}
}

// Clone returns an independent deep copy.
func (p *Points) Clone() Points {
	out := Points{
		tracks: make([]NViewMatch, len(p.tracks)),
		coords: append([]r3.Vector(nil), p.coords...),
		data:   make([]PointData, len(p.data)),
	}
	for i, track := range p.tracks {
		out.tracks[i] = track.Clone()
	}
	for i, d := range p.data {
		out.data[i] = d.clone()
	}
	return out
}
