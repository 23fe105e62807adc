package window

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
)

// glfwWindow holds the GLFW-specific window state.
type glfwWindow struct {
	window  *glfw.Window
	width   int
	height  int
	running bool

	onResize     func(width, height int)
	onKeyDown    func(keyCode uint32)
	onKeyUp      func(keyCode uint32)
	onMouseMove  func(x, y int32)
	onRightMouse func(down bool)
	onScroll     func(delta float32)
}

var _ Window = &glfwWindow{}

// NewWindow creates the GLFW window, loads the Vulkan proc address into the
// binding, and registers input callbacks.
//
// GLFW reference: https://www.glfw.org/docs/latest/vulkan_guide.html
// go-gl/glfw: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw
//
// Parameters:
//   - title: the window title
//   - width: initial width in pixels
//   - height: initial height in pixels
//
// Returns:
//   - Window: the running window
//   - error: an error if GLFW init or window creation fails
func NewWindow(title string, width, height int) (Window, error) {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("window: failed to initialize GLFW: %v", err)
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, fmt.Errorf("window: GLFW reports no Vulkan loader")
	}

	// Vulkan provides its own graphics API, so disable OpenGL context creation.
	// Reference: https://www.glfw.org/docs/latest/window_guide.html#window_hints_ctx
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("window: failed to create GLFW window: %v", err)
	}

	// The binding resolves every Vulkan entry point through the loader GLFW found.
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())

	gw := &glfwWindow{
		window:  win,
		width:   width,
		height:  height,
		running: true,
	}

	// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Window.SetKeyCallback
	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			gw.running = false
			win.SetShouldClose(true)
			return
		}
		switch action {
		case glfw.Press, glfw.Repeat:
			if gw.onKeyDown != nil {
				gw.onKeyDown(uint32(key))
			}
		case glfw.Release:
			if gw.onKeyUp != nil {
				gw.onKeyUp(uint32(key))
			}
		}
	})

	win.SetCursorPosCallback(func(_ *glfw.Window, xpos, ypos float64) {
		if gw.onMouseMove != nil {
			gw.onMouseMove(int32(xpos), int32(ypos))
		}
	})

	win.SetMouseButtonCallback(func(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		if button == glfw.MouseButtonRight && gw.onRightMouse != nil {
			gw.onRightMouse(action == glfw.Press)
		}
	})

	win.SetScrollCallback(func(_ *glfw.Window, _, yoff float64) {
		if gw.onScroll != nil {
			gw.onScroll(float32(yoff))
		}
	})

	win.SetFramebufferSizeCallback(func(_ *glfw.Window, newWidth, newHeight int) {
		gw.width = newWidth
		gw.height = newHeight
		if gw.onResize != nil {
			gw.onResize(newWidth, newHeight)
		}
	})

	return gw, nil
}

func (w *glfwWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *glfwWindow) SetKeyDownCallback(callback func(keyCode uint32)) {
	w.onKeyDown = callback
}

func (w *glfwWindow) SetKeyUpCallback(callback func(keyCode uint32)) {
	w.onKeyUp = callback
}

func (w *glfwWindow) SetMouseMoveCallback(callback func(x, y int32)) {
	w.onMouseMove = callback
}

func (w *glfwWindow) SetRightMouseCallback(callback func(down bool)) {
	w.onRightMouse = callback
}

func (w *glfwWindow) SetScrollCallback(callback func(delta float32)) {
	w.onScroll = callback
}

func (w *glfwWindow) RequiredInstanceExtensions() []string {
	extensions := w.window.GetRequiredInstanceExtensions()
	terminated := make([]string, len(extensions))
	for i, extension := range extensions {
		terminated[i] = extension + "\x00"
	}
	return terminated
}

func (w *glfwWindow) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	surface, err := w.window.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.Surface(vk.NullHandle), fmt.Errorf("window: failed to create surface: %v", err)
	}
	return vk.SurfaceFromPointer(surface), nil
}

func (w *glfwWindow) Size() (int, int) {
	return w.width, w.height
}

func (w *glfwWindow) PollEvents() {
	glfw.PollEvents()
	if w.window.ShouldClose() {
		w.running = false
	}
}

func (w *glfwWindow) IsRunning() bool {
	return w.running
}

func (w *glfwWindow) Close() error {
	w.window.Destroy()
	glfw.Terminate()
	return nil
}
