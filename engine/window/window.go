// package window provides platform windowing and input event delivery for the
// render loop, and bridges the window system to Vulkan: it loads the loader's
// proc address, reports the required instance extensions, and creates the
// presentation surface.
package window

import (
	vk "github.com/goki/vulkan"
)

// Window wraps the platform window with a common interface.
type Window interface {
	// SetResizeCallback sets the function called when the framebuffer is resized.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetKeyDownCallback sets the callback for key press events.
	//
	// Parameters:
	//   - callback: function receiving the virtual key code
	SetKeyDownCallback(callback func(keyCode uint32))

	// SetKeyUpCallback sets the callback for key release events.
	//
	// Parameters:
	//   - callback: function receiving the virtual key code
	SetKeyUpCallback(callback func(keyCode uint32))

	// SetMouseMoveCallback sets the callback for mouse movement.
	//
	// Parameters:
	//   - callback: function receiving mouse x, y position
	SetMouseMoveCallback(callback func(x, y int32))

	// SetRightMouseCallback sets the callback for right mouse button events.
	//
	// Parameters:
	//   - callback: function receiving true on press and false on release
	SetRightMouseCallback(callback func(down bool))

	// SetScrollCallback sets the callback for mouse scroll wheel events.
	//
	// Parameters:
	//   - callback: function receiving scroll delta (positive = up)
	SetScrollCallback(callback func(delta float32))

	// RequiredInstanceExtensions returns the instance extensions the platform
	// needs for presentation, null-terminated for the Vulkan binding.
	//
	// Returns:
	//   - []string: null-terminated extension names
	RequiredInstanceExtensions() []string

	// CreateSurface creates the presentation surface for the given instance.
	//
	// Parameters:
	//   - instance: the Vulkan instance
	//
	// Returns:
	//   - vk.Surface: the created surface
	//   - error: an error if surface creation fails
	CreateSurface(instance vk.Instance) (vk.Surface, error)

	// Size returns the current framebuffer size in pixels.
	//
	// Returns:
	//   - int: the width
	//   - int: the height
	Size() (int, int)

	// PollEvents pumps the platform message loop. Must be called on the main
	// thread, once per frame.
	PollEvents()

	// IsRunning returns true while the window is open.
	//
	// Returns:
	//   - bool: true if the window is still active
	IsRunning() bool

	// Close closes the window and releases platform resources.
	//
	// Returns:
	//   - error: an error if close fails
	Close() error
}
