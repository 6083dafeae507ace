// Package pose implements the free-space-path-loss range model and the
// 3-D pose/azimuth/elevation solver consumed by the wireless adaptors
// (spec.md §4.B).
package pose

import "math"

// DistanceToRSSI models the expected received signal strength, in dBm, for a
// transmitter at tx_power_dbm seen from distanceM meters away.
//
// tx_power values of 0 or 1 are substituted with -49 dBm: a documented
// correction for a known controller bug that reports those values instead of
// real calibration data.
func DistanceToRSSI(txPowerDbm int8, distanceM float64) int8 {
	if txPowerDbm == 0 || txPowerDbm == 1 {
		txPowerDbm = -49
	}

	var rssi float64
	if distanceM == 0 {
		rssi = float64(txPowerDbm) + 40.2
	} else {
		rssi = float64(txPowerDbm) - 20*math.Log10(distanceM)
	}
	return clampRSSI(rssi)
}

func clampRSSI(v float64) int8 {
	if v < -120 {
		v = -120
	}
	if v > 20 {
		v = 20
	}
	return int8(v)
}

// Quaternion is a unit rotation in (w, x, y, z) order.
type Quaternion struct {
	W, X, Y, Z float64
}

// Position is a point in centimetres.
type Position struct {
	X, Y, Z float64
}

// Orientation holds yaw/pitch/roll in degrees, as accepted from the facade.
type Orientation struct {
	Yaw, Pitch, Roll float64
}

// Pose couples a position (stored in centimetres) with an orientation
// quaternion derived from ZXY Euler angles (spec.md §4.B).
type Pose struct {
	Position    Position
	Orientation Quaternion
}

// NewPose builds a Pose from device-space coordinates (meters) and
// yaw/pitch/roll (degrees), converting position to centimetres and
// orientation to a quaternion via the ZXY Euler convention.
func NewPose(xM, yM, zM float64, yawDeg, pitchDeg, rollDeg float64) Pose {
	return Pose{
		Position:    Position{X: xM * 100, Y: yM * 100, Z: zM * 100},
		Orientation: quaternionFromZXYEuler(toRad(yawDeg), toRad(pitchDeg), toRad(rollDeg)),
	}
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

// quaternionFromZXYEuler builds a unit quaternion representing an intrinsic
// rotation applied in Z (yaw) then X (pitch) then Y (roll) order.
func quaternionFromZXYEuler(yaw, pitch, roll float64) Quaternion {
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)
	cx, sx := math.Cos(pitch/2), math.Sin(pitch/2)
	cz, sz := math.Cos(roll/2), math.Sin(roll/2)

	// q = qZ * qX * qY
	qz := Quaternion{W: cy, X: 0, Y: 0, Z: sy}
	qx := Quaternion{W: cx, X: sx, Y: 0, Z: 0}
	qy := Quaternion{W: cz, X: 0, Y: sz, Z: 0}

	return qz.mul(qx).mul(qy)
}

func (q Quaternion) mul(o Quaternion) Quaternion {
	return Quaternion{
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
	}
}

// rotateVectorInverse rotates v by the inverse (conjugate) of q, i.e. maps a
// world-space vector into q's local frame.
func rotateVectorInverse(q Quaternion, v Position) Position {
	conj := Quaternion{W: q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
	p := Quaternion{W: 0, X: v.X, Y: v.Y, Z: v.Z}
	r := conj.mul(p).mul(q)
	return Position{X: r.X, Y: r.Y, Z: r.Z}
}

// RangeAzimuthElevation computes the range (clamped to [0, 65535] cm),
// integer azimuth (degrees, [-180, 180]) and integer elevation (degrees,
// [-90, 90]) of b as observed from a's frame, per spec.md §4.B.
func RangeAzimuthElevation(a, b Pose) (rangeCm int, azimuthDeg int, elevationDeg int) {
	dx := b.Position.X - a.Position.X
	dy := b.Position.Y - a.Position.Y
	dz := b.Position.Z - a.Position.Z

	local := rotateVectorInverse(a.Orientation, Position{X: dx, Y: dy, Z: dz})

	dist := math.Sqrt(local.X*local.X + local.Y*local.Y + local.Z*local.Z)
	rangeCm = int(math.Round(dist))
	if rangeCm < 0 {
		rangeCm = 0
	}
	if rangeCm > 65535 {
		rangeCm = 65535
	}

	// atan2 already folds in the dz<0 quadrant adjustment the spec calls out
	// explicitly (a naive atan(dx/dz) would need it done by hand).
	azimuth := math.Atan2(local.X, local.Z)
	azimuthDeg = clampDeg(int(math.Round(azimuth*180/math.Pi)), -180, 180)

	horiz := math.Sqrt(local.X*local.X + local.Z*local.Z)
	var elevation float64
	if horiz == 0 && local.Y == 0 {
		elevation = 0
	} else {
		elevation = math.Atan2(local.Y, horiz)
	}
	elevationDeg = clampDeg(int(math.Round(elevation*180/math.Pi)), -90, 90)

	return rangeCm, azimuthDeg, elevationDeg
}

func clampDeg(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Distance returns the Euclidean distance in meters between two device
// positions given in meters (used directly by registry.GetDistance, which
// stores device positions in meters as received from the facade).
func Distance(ax, ay, az, bx, by, bz float64) float64 {
	dx, dy, dz := bx-ax, by-ay, bz-az
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
