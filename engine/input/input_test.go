package input

import (
	"testing"

	"github.com/Carmen-Shannon/forge-go/common"
)

func TestKeyPressedRollsOverPerFrame(t *testing.T) {
	in := NewInput()

	in.OnKeyDown(common.KeyW)
	if !in.KeyPressed(common.KeyW) {
		t.Error("key not reported as pressed in the frame it went down")
	}
	if !in.KeyDown(common.KeyW) {
		t.Error("key not reported as held")
	}

	in.NewFrame()
	if in.KeyPressed(common.KeyW) {
		t.Error("pressed state survived NewFrame")
	}
	if !in.KeyDown(common.KeyW) {
		t.Error("held state did not survive NewFrame")
	}

	// Holding the key does not re-trigger pressed.
	in.OnKeyDown(common.KeyW)
	if in.KeyPressed(common.KeyW) {
		t.Error("repeat event re-triggered pressed state")
	}

	in.OnKeyUp(common.KeyW)
	if in.KeyDown(common.KeyW) {
		t.Error("key reported as held after release")
	}
}

func TestMouseDeltaAccumulatesAndResets(t *testing.T) {
	in := NewInput()

	in.OnMouseMove(100, 100)
	in.NewFrame()

	in.OnMouseMove(110, 95)
	in.OnMouseMove(120, 90)

	dx, dy := in.MouseDelta()
	if dx != 20 || dy != -10 {
		t.Errorf("delta = (%d, %d), want (20, -10)", dx, dy)
	}

	in.NewFrame()
	dx, dy = in.MouseDelta()
	if dx != 0 || dy != 0 {
		t.Errorf("delta after NewFrame = (%d, %d), want (0, 0)", dx, dy)
	}
}

func TestScrollAccumulates(t *testing.T) {
	in := NewInput()
	in.OnScroll(1.0)
	in.OnScroll(0.5)
	if got := in.ScrollDelta(); got != 1.5 {
		t.Errorf("scroll delta = %v, want 1.5", got)
	}
	in.NewFrame()
	if got := in.ScrollDelta(); got != 0 {
		t.Errorf("scroll delta after NewFrame = %v, want 0", got)
	}
}
