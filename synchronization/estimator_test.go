package synchronization

import (
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"
)

func TestZeroEstimatorItem(t *testing.T) {
	var nilItem *EstimatorItem
	test.That(t, nilItem.Interface(), test.ShouldBeNil)
	test.That(t, nilItem.Features(), test.ShouldBeNil)

	empty := &EstimatorItem{}
	test.That(t, empty.Interface(), test.ShouldBeNil)
	test.That(t, empty.Features(), test.ShouldBeNil)
	test.That(t, empty.OpticalFlowTo(empty), test.ShouldBeNil)
	test.That(t, empty.EstimatePose(empty, identityUndistort(), 0, 1), test.ShouldBeNil)
	// no-op, must not panic
	empty.Cleanup()
}

func TestVariantMismatch(t *testing.T) {
	logger := golog.NewTestLogger(t)
	item := DetectFeatures(0, texturedFrame(1), testWidth, testHeight, logger)

	// an item with no matching backend cannot be tracked against
	test.That(t, item.OpticalFlowTo(&EstimatorItem{}), test.ShouldBeNil)
	test.That(t, item.OpticalFlowTo(nil), test.ShouldBeNil)
	test.That(t, item.EstimatePose(&EstimatorItem{}, identityUndistort(), 0, 1), test.ShouldBeNil)
}
