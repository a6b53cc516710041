package usecase

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
)

func TestFPSController_ClampsInitial(t *testing.T) {
	gt.Number(t, newFPSController(5, 10, 30, 2).Current()).Equal(10)
	gt.Number(t, newFPSController(100, 10, 30, 2).Current()).Equal(30)
	gt.Number(t, newFPSController(20, 10, 30, 2).Current()).Equal(20)
}

func TestFPSController_SpeedsUpWhenGenerationIsFast(t *testing.T) {
	// Two clients rendering a 300ms chunk in 30ms: alpha = 10, so the safe
	// candidate 2*10*10-7 = 193 caps at max and the rate moves halfway up.
	ctrl := newFPSController(10, 10, 30, 2)

	next := ctrl.Observe(300*time.Millisecond, 30*time.Millisecond)
	gt.Number(t, next).Equal(30)
	gt.Number(t, ctrl.Current()).Equal(30)
}

func TestFPSController_SlowsDownWhenGenerationLags(t *testing.T) {
	// A 300ms chunk taking 3s: alpha = 0.1, candidate floor(2*30*0.1-7) < min,
	// so the rate decays halfway toward the floor.
	ctrl := newFPSController(30, 10, 30, 2)

	next := ctrl.Observe(300*time.Millisecond, 3*time.Second)
	gt.Number(t, next).Equal(20)

	next = ctrl.Observe(300*time.Millisecond, 3*time.Second)
	gt.Number(t, next).Equal(15)

	// Repeated pressure converges on the floor.
	for i := 0; i < 10; i++ {
		next = ctrl.Observe(300*time.Millisecond, 3*time.Second)
	}
	gt.Number(t, next).Equal(10)
}

func TestFPSController_IgnoresZeroElapsed(t *testing.T) {
	ctrl := newFPSController(20, 10, 30, 2)
	gt.Number(t, ctrl.Observe(300*time.Millisecond, 0)).Equal(20)
}

func TestFPSController_NeverLeavesBounds(t *testing.T) {
	ctrl := newFPSController(10, 10, 30, 4)

	for i := 0; i < 50; i++ {
		elapsed := time.Duration(1+i%7) * 10 * time.Millisecond
		fps := ctrl.Observe(300*time.Millisecond, elapsed)
		gt.True(t, fps >= 10)
		gt.True(t, fps <= 30)
	}
}
