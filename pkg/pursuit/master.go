package pursuit

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/mpapenbr/racenav/pkg/scene"
	"github.com/mpapenbr/racenav/pkg/spline"
)

// master distance classes, by degrees of separation from the master spline
const (
	classMaster = iota
	classLinked
	classNeighbour
	classScanned
)

const (
	masterScanMovement   = 1000.0
	masterScanWindow     = masterScanMovement * 16
	masterScanIterations = 5
	masterWrapFraction   = 0.25
)

// HasMasterDistances reports whether the extended points carry distances
// along the master spline.
func (s *Spline) HasMasterDistances() bool {
	return s.masterClass != noMasterClass && len(s.extended) > 0
}

// MasterClass returns how the master distances were derived, -1 if they
// are missing.
func (s *Spline) MasterClass() int { return s.masterClass }

// MasterDistanceAt maps a distance along s onto the master spline. It
// returns 0 when no mapping exists.
func (s *Spline) MasterDistanceAt(distance float64) float64 {
	if !s.HasMasterDistances() {
		return 0
	}
	if len(s.extended) == 1 {
		return s.extended[0].masterDistance
	}
	masterLength := s.net.MasterLength()
	k0, k1, r := s.extendedKeys(distance)
	v0 := s.extended[k0].masterDistance
	v1 := s.extended[k1].masterDistance
	if masterLength > 0 && v1 < v0 && v0-v1 >= masterLength*masterWrapFraction {
		v1 += masterLength
	}
	md := lerp(v0, v1, r)
	if masterLength > 0 {
		md = math.Mod(md, masterLength)
	}
	return md
}

// NearestDistanceToMasterDistance returns the distance along s whose master
// distance is closest to masterDistance.
func (s *Spline) NearestDistanceToMasterDistance(masterDistance float64) float64 {
	if !s.HasMasterDistances() {
		return 0
	}
	masterLength := s.net.MasterLength()
	length := s.Length()
	q := spline.Search{
		End:        length,
		Iterations: masterScanIterations,
		Samples:    spline.NumSamplesForRange(length, masterScanIterations, 1, linkSearchMinSamples),
		EarlyExit:  1,
	}
	return s.Curve().SearchFunc(q, func(d float64) float64 {
		return spline.DistanceDifference(s.MasterDistanceAt(d), masterDistance, masterLength, true, false, masterLength)
	}, 1)
}

func (s *Spline) clearMasterDistances() {
	for i := range s.extended {
		s.extended[i].masterDistance = noMasterDistance
	}
	s.masterClass = noMasterClass
}

func (n *Network) buildMasterDistances() {
	for _, s := range n.valid {
		s.clearMasterDistances()
	}
	master, ok := n.Master()
	if !ok {
		n.logger.Warn("no closed loop to act as master spline")
		return
	}
	for i := range master.extended {
		master.extended[i].masterDistance = master.extended[i].distance
	}
	master.masterClass = classMaster

	for _, s := range n.valid {
		if s != master && s.IsClosedLoop() {
			n.scanMasterDistances(s, n.nearestMasterDistance(s.Curve().LocationAt(0)), classScanned)
		}
	}

	for degree := classMaster; degree <= classScanned; degree++ {
		for changed := true; changed; {
			changed = false
			for _, s := range n.valid {
				if s.HasMasterDistances() || s.IsClosedLoop() {
					continue
				}
				if n.calculateMasterDistances(s, degree) {
					changed = true
				}
			}
		}
	}
	for _, s := range n.valid {
		if !s.HasMasterDistances() {
			n.scanMasterDistances(s, n.nearestMasterDistance(s.Curve().LocationAt(0)), classScanned)
		}
	}
}

func (n *Network) nearestMasterDistance(loc mgl64.Vec3) float64 {
	master, _ := n.Master()
	return master.Curve().NearestDistance(loc, 0, 0, masterScanIterations,
		spline.NumSamplesForRange(master.Length(), masterScanIterations, 1, linkSearchMinSamples), 1)
}

// linkedMasterDistance resolves the master distance at the start or at the
// end of s through its links. degree limits how many splines may lie in
// between.
func (n *Network) linkedMasterDistance(s *Spline, atEnd bool, degree int) (float64, bool) {
	at := 0.0
	if atEnd {
		at = s.Length()
	}
	master, _ := n.Master()
	for _, l := range s.Links {
		if math.Abs(l.ThisDistance-at) >= linkTolerance {
			continue
		}
		if l.Spline == master.Handle {
			return l.NextDistance, true
		}
		other, ok := n.Spline(l.Spline)
		if !ok {
			continue
		}
		if degree >= classLinked && other.HasMasterDistances() {
			return other.MasterDistanceAt(l.NextDistance), true
		}
		if degree < classNeighbour {
			continue
		}
		for _, child := range other.Links {
			next, ok := n.Spline(child.Spline)
			if !ok || next == s || !next.HasMasterDistances() {
				continue
			}
			// offset of the junction with s against the junction with next
			offset := l.NextDistance - child.ThisDistance
			if math.Abs(offset) > masterScanWindow {
				continue
			}
			md := next.MasterDistanceAt(child.NextDistance) + offset
			return master.Curve().ClampDistance(md), true
		}
	}
	return 0, false
}

// calculateMasterDistances maps s onto the master spline proportionally
// between its linked start and end. At classScanned a missing end is
// replaced by a tracked scan from the linked start.
func (n *Network) calculateMasterDistances(s *Spline, degree int) bool {
	start, startOK := n.linkedMasterDistance(s, false, min(degree, classNeighbour))
	if !startOK {
		return false
	}
	end, endOK := n.linkedMasterDistance(s, true, min(degree, classNeighbour))
	switch {
	case endOK:
		n.proportionalMasterDistances(s, start, end)
		s.masterClass = min(degree, classNeighbour)
	case degree == classScanned:
		n.scanMasterDistances(s, start, classScanned)
		return true
	default:
		return false
	}
	n.propagateMasterDistances(s)
	return true
}

func (n *Network) proportionalMasterDistances(s *Spline, start, end float64) {
	masterLength := n.MasterLength()
	section := end - start
	if section < 0 {
		section += masterLength
	}
	length := s.Length()
	for i := range s.extended {
		md := start
		if length > 0 {
			md += s.extended[i].distance / length * section
		}
		s.extended[i].masterDistance = math.Mod(md, masterLength)
	}
}

// scanMasterDistances follows s with windowed nearest-distance searches on
// the master spline, starting at the master distance start.
func (n *Network) scanMasterDistances(s *Spline, start float64, class int) {
	master, _ := n.Master()
	mc := master.Curve()
	samples := spline.NumSamplesForRange(masterScanWindow, masterScanIterations, 1, 0)
	running := start
	for i := range s.extended {
		loc := s.Curve().LocationAt(s.extended[i].distance)
		running = mc.NearestDistance(loc, running-masterScanWindow/2, running+masterScanWindow/2,
			masterScanIterations, samples, 1)
		s.extended[i].masterDistance = running
	}
	s.masterClass = class
	n.propagateMasterDistances(s)
}

// propagateMasterDistances continues into splines branching off forwards
// that have no master distances yet.
func (n *Network) propagateMasterDistances(s *Spline) {
	for _, l := range s.Links {
		if !l.Forward || l.NextDistance >= linkTolerance {
			continue
		}
		next, ok := n.Spline(l.Spline)
		if !ok || next.HasMasterDistances() || next.IsClosedLoop() {
			continue
		}
		if _, endOK := n.linkedMasterDistance(next, true, classNeighbour); endOK {
			// resolved proportionally once its start is known
			continue
		}
		n.scanMasterDistances(next, s.MasterDistanceAt(l.ThisDistance), classScanned)
	}
}

// masterHandle returns the handle of the master spline or scene.NoHandle.
func (n *Network) masterHandle() scene.Handle {
	return n.master.GetOr(scene.NoHandle)
}
