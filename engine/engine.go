// package engine provides the run loop contract the frame graph is driven by:
// a fixed-rate tick loop for host logic and a main-thread render loop that
// pumps window events, invokes the per-frame render callback where the host
// rebuilds and executes the graph, and then rolls the input snapshot.
package engine

import (
	"log"
	"sync"
	"time"

	"github.com/Carmen-Shannon/forge-go/engine/input"
	"github.com/Carmen-Shannon/forge-go/engine/profiler"
	"github.com/Carmen-Shannon/forge-go/engine/window"
)

// engine implements the Engine interface.
// Coordinates the engine tick goroutine and the main-thread render loop.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	window window.Window
	input  input.Input

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine is the main entry point for the run loop.
// It orchestrates the tick loop, the render loop, and window management.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Input returns the per-frame input snapshot fed by the window callbacks.
	//
	// Returns:
	//   - input.Input: the input state
	Input() input.Input

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in ticks per second.
	// The tick callback will be called at this rate for host logic updates.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	// Use this for host logic, input processing, and camera updates.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called each render frame on the
	// main thread. This is where the host rebuilds the graph, prepares it, and
	// records the frame.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per
	// second. Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Run starts the tick goroutine and blocks in the render loop until the
	// window closes or Quit is called. Must be called on the main thread.
	Run()

	// Quit signals all engine goroutines to stop and shuts down the run loop.
	// Safe to call multiple times.
	Quit()
}

var _ Engine = &engine{}

// NewEngine creates an engine around a window with all options applied, and
// wires the window's input callbacks into the input snapshot.
//
// Parameters:
//   - w: the window to drive
//   - options: a variadic list of EngineBuilderOption functions to configure the engine
//
// Returns:
//   - Engine: the configured engine
func NewEngine(w window.Window, options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		window:          w,
		input:           input.NewInput(),
		profiler:        profiler.NewProfiler(),
		engineTickRate:  time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}

	w.SetKeyDownCallback(e.input.OnKeyDown)
	w.SetKeyUpCallback(e.input.OnKeyUp)
	w.SetMouseMoveCallback(e.input.OnMouseMove)
	w.SetRightMouseCallback(e.input.OnRightMouse)
	w.SetScrollCallback(e.input.OnScroll)

	return e
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Input() input.Input {
	return e.input
}

func (e *engine) Run() {
	e.running = true
	e.wg.Add(1)
	go e.handleTick()

	e.renderLoop()

	e.signalQuit()
	e.wg.Wait()
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
	})
}

// handleTick runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic
// rate changes via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleTick() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// renderLoop runs the uncapped (or frame-limited) render loop on the calling
// (main) thread: pump window events, invoke the render callback, roll the
// input snapshot, tick the profiler. Recovers from panics so a render-side
// failure shuts the loop down instead of crashing the process without cleanup.
func (e *engine) renderLoop() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Engine] render loop recovered from panic: %v", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for e.window.IsRunning() {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		e.window.PollEvents()

		if e.renderCallback != nil {
			e.renderCallback(dt)
		}
		e.input.NewFrame()

		if e.profilingEnabled && e.profiler != nil {
			e.profiler.Tick(nil)
		}

		// Frame rate limiting
		if e.renderFrameLimit > 0 {
			elapsed := time.Since(lastRender)
			if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in ticks per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Second / time.Duration(fps)

	if e.running {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderCallback registers the function called each render frame.
func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Second / time.Duration(fps)
}
