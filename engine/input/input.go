// package input holds the per-frame input snapshot the run loop feeds to host
// camera and UI code. The window layer pushes raw key and mouse events; the
// host reads the consolidated state inside its frame callback.
package input

import (
	"sync"
)

// input is the implementation of the Input interface.
type input struct {
	mu sync.Mutex

	keysDown    map[uint32]bool
	keysPressed map[uint32]bool

	mouseX, mouseY           int32
	mouseDeltaX, mouseDeltaY int32
	rightMouseDown           bool

	scrollDelta float32
}

// Input is the per-frame input snapshot. Event callbacks may fire from the
// window's message loop; readers run in the frame callback, so the state is
// guarded by a mutex.
type Input interface {
	// KeyDown reports whether a key is currently held.
	//
	// Parameters:
	//   - keyCode: the virtual key code (see common key code constants)
	//
	// Returns:
	//   - bool: true while the key is held
	KeyDown(keyCode uint32) bool

	// KeyPressed reports whether a key went down since the previous NewFrame.
	//
	// Parameters:
	//   - keyCode: the virtual key code
	//
	// Returns:
	//   - bool: true if the key was pressed this frame
	KeyPressed(keyCode uint32) bool

	// MousePosition returns the cursor position in window pixels.
	//
	// Returns:
	//   - int32: the x position
	//   - int32: the y position
	MousePosition() (int32, int32)

	// MouseDelta returns the cursor movement since the previous NewFrame.
	//
	// Returns:
	//   - int32: the x delta
	//   - int32: the y delta
	MouseDelta() (int32, int32)

	// RightMouseDown reports whether the right mouse button is held.
	//
	// Returns:
	//   - bool: true while the button is held
	RightMouseDown() bool

	// ScrollDelta returns the accumulated scroll wheel movement since the
	// previous NewFrame.
	//
	// Returns:
	//   - float32: the scroll delta (positive = up)
	ScrollDelta() float32

	// NewFrame rolls per-frame state over: pressed keys, mouse delta, and the
	// scroll accumulator reset. The run loop calls it once per frame after the
	// render callback.
	NewFrame()

	// OnKeyDown records a key press event. Wired to the window's key callback.
	//
	// Parameters:
	//   - keyCode: the virtual key code
	OnKeyDown(keyCode uint32)

	// OnKeyUp records a key release event.
	//
	// Parameters:
	//   - keyCode: the virtual key code
	OnKeyUp(keyCode uint32)

	// OnMouseMove records the new cursor position.
	//
	// Parameters:
	//   - x: the cursor x in window pixels
	//   - y: the cursor y in window pixels
	OnMouseMove(x, y int32)

	// OnRightMouse records the right mouse button state.
	//
	// Parameters:
	//   - down: true on press, false on release
	OnRightMouse(down bool)

	// OnScroll accumulates scroll wheel movement.
	//
	// Parameters:
	//   - delta: the wheel delta (positive = up)
	OnScroll(delta float32)
}

var _ Input = &input{}

// NewInput creates an empty input snapshot.
//
// Returns:
//   - Input: the input state
func NewInput() Input {
	return &input{
		keysDown:    make(map[uint32]bool),
		keysPressed: make(map[uint32]bool),
	}
}

func (i *input) KeyDown(keyCode uint32) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.keysDown[keyCode]
}

func (i *input) KeyPressed(keyCode uint32) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.keysPressed[keyCode]
}

func (i *input) MousePosition() (int32, int32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.mouseX, i.mouseY
}

func (i *input) MouseDelta() (int32, int32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.mouseDeltaX, i.mouseDeltaY
}

func (i *input) RightMouseDown() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.rightMouseDown
}

func (i *input) ScrollDelta() float32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.scrollDelta
}

func (i *input) NewFrame() {
	i.mu.Lock()
	defer i.mu.Unlock()
	clear(i.keysPressed)
	i.mouseDeltaX = 0
	i.mouseDeltaY = 0
	i.scrollDelta = 0
}

func (i *input) OnKeyDown(keyCode uint32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.keysDown[keyCode] {
		i.keysPressed[keyCode] = true
	}
	i.keysDown[keyCode] = true
}

func (i *input) OnKeyUp(keyCode uint32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.keysDown, keyCode)
}

func (i *input) OnMouseMove(x, y int32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.mouseDeltaX += x - i.mouseX
	i.mouseDeltaY += y - i.mouseY
	i.mouseX = x
	i.mouseY = y
}

func (i *input) OnRightMouse(down bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.rightMouseDown = down
}

func (i *input) OnScroll(delta float32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.scrollDelta += delta
}
