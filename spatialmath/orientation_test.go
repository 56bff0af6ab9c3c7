package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func TestZeroOrientation(t *testing.T) {
	zero := NewZeroOrientation()
	test.That(t, zero.Quaternion(), test.ShouldResemble, quat.Number{1, 0, 0, 0})
	test.That(t, zero.AxisAngles().Theta, test.ShouldAlmostEqual, 0)
	test.That(t, zero.EulerAngles(), test.ShouldResemble, NewEulerAngles())

	rm := zero.RotationMatrix()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if i == j {
				test.That(t, rm.At(i, j), test.ShouldAlmostEqual, 1)
			} else {
				test.That(t, rm.At(i, j), test.ShouldAlmostEqual, 0)
			}
		}
	}
}

func TestOrientationBetween(t *testing.T) {
	o1 := &R4AA{Theta: math.Pi / 2, RZ: 1}
	o2 := &R4AA{Theta: math.Pi, RZ: 1}
	diff := OrientationBetween(o1, o2)
	test.That(t, OrientationAlmostEqual(diff, &R4AA{Theta: math.Pi / 2, RZ: 1}), test.ShouldBeTrue)
}

func TestRotationMatrixConversions(t *testing.T) {
	for _, tc := range []struct {
		name string
		aa   *R4AA
	}{
		{"identity", &R4AA{Theta: 0, RZ: 1}},
		{"quarter turn about z", &R4AA{Theta: math.Pi / 2, RZ: 1}},
		{"half turn about x", &R4AA{Theta: math.Pi, RX: 1}},
		{"arbitrary axis", &R4AA{Theta: 1.2, RX: 1, RY: 2, RZ: -0.5}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tc.aa.Normalize()
			rm := tc.aa.RotationMatrix()
			test.That(t, OrientationAlmostEqual(rm, tc.aa), test.ShouldBeTrue)
			// round trip through the quaternion branch cases
			back := QuatToRotationMatrix(rm.Quaternion())
			for i := 0; i < 3; i++ {
				for j := 0; j < 3; j++ {
					test.That(t, back.At(i, j), test.ShouldAlmostEqual, rm.At(i, j), 1e-8)
				}
			}
		})
	}
}

func TestNewRotationMatrix(t *testing.T) {
	_, err := NewRotationMatrix([]float64{1, 0, 0, 0, 1, 0})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "need exactly 9")

	rm, err := NewRotationMatrix([]float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rm.Theta(), test.ShouldAlmostEqual, 0)
}

func TestRowColMul(t *testing.T) {
	rm, err := NewRotationMatrix([]float64{
		0, -1, 0,
		1, 0, 0,
		0, 0, 1,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rm.Row(0).Y, test.ShouldEqual, -1)
	test.That(t, rm.Col(0).Y, test.ShouldEqual, 1)

	v := rm.Mul(r3.Vector{X: 1})
	test.That(t, v.X, test.ShouldAlmostEqual, 0)
	test.That(t, v.Y, test.ShouldAlmostEqual, 1)
	test.That(t, v.Z, test.ShouldAlmostEqual, 0)
	test.That(t, rm.Theta(), test.ShouldAlmostEqual, math.Pi/2)
}
