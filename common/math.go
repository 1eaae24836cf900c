package common

import (
	"math"

	"cogentcore.org/core/math32"
)

// Identity resets a 4x4 matrix (flat slice) to the identity matrix.
// The matrix is stored in column-major order.
//
// Parameters:
//   - m: destination slice (must be at least 16 elements)
func Identity(m []float32) {
	for i := range m {
		m[i] = 0
	}
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
}

// Mul4 multiplies two 4x4 matrices and stores the result in out.
// All matrices are stored in column-major order (OpenGL/WebGPU convention).
// Result: out = a * b
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - a: left-hand matrix (16 elements)
//   - b: right-hand matrix (16 elements)
func Mul4(out, a, b []float32) {
	var buf [16]float32
	for i := 0; i < 4; i++ { // column of B
		for j := 0; j < 4; j++ { // row of A
			sum := float32(0)
			for k := 0; k < 4; k++ {
				sum += a[k*4+j] * b[i*4+k]
			}
			buf[i*4+j] = sum
		}
	}
	copy(out, buf[:])
}

// Perspective creates a perspective projection matrix compatible with WebGPU clip space [0, 1].
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clipping plane distance (must be > 0)
//   - far: far clipping plane distance (must be > near)
func Perspective(out []float32, fovY, aspect, near, far float32) {
	f := 1.0 / float32(math.Tan(float64(fovY)/2.0))
	Identity(out)

	out[0] = f / aspect
	out[5] = f
	out[10] = far / (near - far)
	out[11] = -1.0
	out[14] = (near * far) / (near - far)
	out[15] = 0.0
}

// Orthographic creates an orthographic projection matrix centred on the view axis,
// compatible with WebGPU clip space [0, 1].
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - width, height: size of the view volume in world units
//   - near, far: clipping plane distances
func Orthographic(out []float32, width, height, near, far float32) {
	Identity(out)
	if width == 0 || height == 0 || near == far {
		return
	}
	out[0] = 2 / width
	out[5] = 2 / height
	out[10] = 1 / (near - far)
	out[14] = near / (near - far)
}

// Invert4 computes the inverse of a 4x4 column-major matrix using the Laplace
// expansion (cofactor) method. If the matrix is singular (determinant ≈ 0) the
// output is left unchanged and the function returns false.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - m: source matrix (16 elements, column-major)
//
// Returns:
//   - bool: true if the matrix was successfully inverted, false if singular
func Invert4(out, m []float32) bool {
	// 2x2 sub-determinants of the upper-left and lower-right quadrants.
	s0 := m[0]*m[5] - m[4]*m[1]
	s1 := m[0]*m[6] - m[4]*m[2]
	s2 := m[0]*m[7] - m[4]*m[3]
	s3 := m[1]*m[6] - m[5]*m[2]
	s4 := m[1]*m[7] - m[5]*m[3]
	s5 := m[2]*m[7] - m[6]*m[3]

	c5 := m[10]*m[15] - m[14]*m[11]
	c4 := m[9]*m[15] - m[13]*m[11]
	c3 := m[9]*m[14] - m[13]*m[10]
	c2 := m[8]*m[15] - m[12]*m[11]
	c1 := m[8]*m[14] - m[12]*m[10]
	c0 := m[8]*m[13] - m[12]*m[9]

	det := s0*c5 - s1*c4 + s2*c3 + s3*c2 - s4*c1 + s5*c0
	if det == 0 {
		return false
	}

	invDet := 1.0 / det

	out[0] = (m[5]*c5 - m[6]*c4 + m[7]*c3) * invDet
	out[1] = (-m[1]*c5 + m[2]*c4 - m[3]*c3) * invDet
	out[2] = (m[13]*s5 - m[14]*s4 + m[15]*s3) * invDet
	out[3] = (-m[9]*s5 + m[10]*s4 - m[11]*s3) * invDet

	out[4] = (-m[4]*c5 + m[6]*c2 - m[7]*c1) * invDet
	out[5] = (m[0]*c5 - m[2]*c2 + m[3]*c1) * invDet
	out[6] = (-m[12]*s5 + m[14]*s2 - m[15]*s1) * invDet
	out[7] = (m[8]*s5 - m[10]*s2 + m[11]*s1) * invDet

	out[8] = (m[4]*c4 - m[5]*c2 + m[7]*c0) * invDet
	out[9] = (-m[0]*c4 + m[1]*c2 - m[3]*c0) * invDet
	out[10] = (m[12]*s4 - m[13]*s2 + m[15]*s0) * invDet
	out[11] = (-m[8]*s4 + m[9]*s2 - m[11]*s0) * invDet

	out[12] = (-m[4]*c3 + m[5]*c1 - m[6]*c0) * invDet
	out[13] = (m[0]*c3 - m[1]*c1 + m[2]*c0) * invDet
	out[14] = (-m[12]*s3 + m[13]*s1 - m[14]*s0) * invDet
	out[15] = (m[8]*s3 - m[9]*s1 + m[10]*s0) * invDet

	return true
}

// ViewFromOrientation builds a view matrix for an eye at pos whose local axes are given by q.
// The eye looks down its local -Z axis.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - pos: eye position in world space
//   - q: eye orientation
func ViewFromOrientation(out []float32, pos math32.Vector3, q math32.Quat) {
	x := math32.Vec3(1, 0, 0).MulQuat(q)
	y := math32.Vec3(0, 1, 0).MulQuat(q)
	z := math32.Vec3(0, 0, 1).MulQuat(q)

	out[0], out[4], out[8], out[12] = x.X, x.Y, x.Z, -x.Dot(pos)
	out[1], out[5], out[9], out[13] = y.X, y.Y, y.Z, -y.Dot(pos)
	out[2], out[6], out[10], out[14] = z.X, z.Y, z.Z, -z.Dot(pos)
	out[3], out[7], out[11], out[15] = 0, 0, 0, 1
}

// TransformPoint multiplies the point (p, 1) by a column-major 4x4 matrix.
//
// Parameters:
//   - m: the matrix (16 elements)
//   - p: the point
//
// Returns:
//   - math32.Vector4: the transformed homogeneous point
func TransformPoint(m []float32, p math32.Vector3) math32.Vector4 {
	return math32.Vector4{
		X: m[0]*p.X + m[4]*p.Y + m[8]*p.Z + m[12],
		Y: m[1]*p.X + m[5]*p.Y + m[9]*p.Z + m[13],
		Z: m[2]*p.X + m[6]*p.Y + m[10]*p.Z + m[14],
		W: m[3]*p.X + m[7]*p.Y + m[11]*p.Z + m[15],
	}
}

// QuatIdentity returns the identity rotation.
func QuatIdentity() math32.Quat {
	return math32.Quat{W: 1}
}

// QuatMul returns the Hamilton product a * b (apply b, then a).
func QuatMul(a, b math32.Quat) math32.Quat {
	return math32.Quat{
		X: a.W*b.X + a.X*b.W + a.Y*b.Z - a.Z*b.Y,
		Y: a.W*b.Y - a.X*b.Z + a.Y*b.W + a.Z*b.X,
		Z: a.W*b.Z + a.X*b.Y - a.Y*b.X + a.Z*b.W,
		W: a.W*b.W - a.X*b.X - a.Y*b.Y - a.Z*b.Z,
	}
}

// QuatInverse returns the inverse rotation of q.
func QuatInverse(q math32.Quat) math32.Quat {
	n := q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W
	if n == 0 {
		return QuatIdentity()
	}
	inv := 1 / n
	return math32.Quat{X: -q.X * inv, Y: -q.Y * inv, Z: -q.Z * inv, W: q.W * inv}
}

// QuatFromAxisAngle returns the rotation of angle radians around axis.
func QuatFromAxisAngle(axis math32.Vector3, angle float32) math32.Quat {
	axis = axis.Normal()
	s := math32.Sin(angle * 0.5)
	return math32.Quat{X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s, W: math32.Cos(angle * 0.5)}
}

// QuatFromAxes returns the rotation whose local X, Y and Z axes map to the given orthonormal axes.
func QuatFromAxes(xAxis, yAxis, zAxis math32.Vector3) math32.Quat {
	m00, m01, m02 := xAxis.X, yAxis.X, zAxis.X
	m10, m11, m12 := xAxis.Y, yAxis.Y, zAxis.Y
	m20, m21, m22 := xAxis.Z, yAxis.Z, zAxis.Z

	trace := m00 + m11 + m22
	var q math32.Quat
	switch {
	case trace > 0:
		s := 0.5 / math32.Sqrt(trace+1)
		q.W = 0.25 / s
		q.X = (m21 - m12) * s
		q.Y = (m02 - m20) * s
		q.Z = (m10 - m01) * s
	case m00 > m11 && m00 > m22:
		s := 2 * math32.Sqrt(1+m00-m11-m22)
		q.W = (m21 - m12) / s
		q.X = 0.25 * s
		q.Y = (m01 + m10) / s
		q.Z = (m02 + m20) / s
	case m11 > m22:
		s := 2 * math32.Sqrt(1+m11-m00-m22)
		q.W = (m02 - m20) / s
		q.X = (m01 + m10) / s
		q.Y = 0.25 * s
		q.Z = (m12 + m21) / s
	default:
		s := 2 * math32.Sqrt(1+m22-m00-m11)
		q.W = (m10 - m01) / s
		q.X = (m02 + m20) / s
		q.Y = (m12 + m21) / s
		q.Z = 0.25 * s
	}
	return q
}

// QuatFromDirection returns an orientation whose local -Z axis points along dir.
// When dir is parallel to up, the world Z axis is used as the up hint instead.
//
// Parameters:
//   - dir: the direction to look along (need not be normalized)
//   - up: the up hint, usually +Y
//
// Returns:
//   - math32.Quat: the orientation
func QuatFromDirection(dir, up math32.Vector3) math32.Quat {
	if dir.Length() == 0 {
		return QuatIdentity()
	}
	zAxis := dir.Normal().MulScalar(-1)
	xAxis := up.Cross(zAxis)
	if xAxis.Length() < 1e-6 {
		xAxis = math32.Vec3(0, 0, 1).Cross(zAxis)
		if xAxis.Length() < 1e-6 {
			xAxis = math32.Vec3(1, 0, 0)
		}
	}
	xAxis = xAxis.Normal()
	yAxis := zAxis.Cross(xAxis)
	return QuatFromAxes(xAxis, yAxis, zAxis)
}

// Lerp3 linearly interpolates from a to b by t. t is not clamped.
func Lerp3(a, b math32.Vector3, t float32) math32.Vector3 {
	return a.Add(b.Sub(a).MulScalar(t))
}

// BoxCorners returns the eight corners of b.
func BoxCorners(b math32.Box3) [8]math32.Vector3 {
	return [8]math32.Vector3{
		math32.Vec3(b.Min.X, b.Min.Y, b.Min.Z),
		math32.Vec3(b.Min.X, b.Min.Y, b.Max.Z),
		math32.Vec3(b.Min.X, b.Max.Y, b.Min.Z),
		math32.Vec3(b.Min.X, b.Max.Y, b.Max.Z),
		math32.Vec3(b.Max.X, b.Min.Y, b.Min.Z),
		math32.Vec3(b.Max.X, b.Min.Y, b.Max.Z),
		math32.Vec3(b.Max.X, b.Max.Y, b.Min.Z),
		math32.Vec3(b.Max.X, b.Max.Y, b.Max.Z),
	}
}
