package device

// deviceConfig accumulates builder options before device creation.
type deviceConfig struct {
	appName            string
	validation         bool
	raytracing         bool
	profiling          bool
	instanceExtensions []string
}

// DeviceBuilderOption is a functional option used to configure a Device during construction.
type DeviceBuilderOption func(*deviceConfig)

// WithAppName sets the application name reported to the driver.
//
// Parameters:
//   - name: the application name
//
// Returns:
//   - DeviceBuilderOption: a function that sets the application name
func WithAppName(name string) DeviceBuilderOption {
	return func(c *deviceConfig) {
		c.appName = name
	}
}

// WithValidation enables the Khronos validation layer.
//
// Parameters:
//   - enabled: whether to request the validation layer
//
// Returns:
//   - DeviceBuilderOption: a function that sets the validation state
func WithValidation(enabled bool) DeviceBuilderOption {
	return func(c *deviceConfig) {
		c.validation = enabled
	}
}

// WithRaytracing controls whether the ray tracing extensions are requested.
// Enabled by default; the device degrades with a log message when the GPU lacks them.
//
// Parameters:
//   - enabled: whether to request ray tracing extensions
//
// Returns:
//   - DeviceBuilderOption: a function that sets the ray tracing request
func WithRaytracing(enabled bool) DeviceBuilderOption {
	return func(c *deviceConfig) {
		c.raytracing = enabled
	}
}

// WithGPUProfiling enables the timestamp query frame profiler.
//
// Parameters:
//   - enabled: whether to create the frame profiler
//
// Returns:
//   - DeviceBuilderOption: a function that sets the profiling state
func WithGPUProfiling(enabled bool) DeviceBuilderOption {
	return func(c *deviceConfig) {
		c.profiling = enabled
	}
}

// WithInstanceExtensions sets the instance extensions the windowing layer
// requires (the GLFW window reports these). Each entry must be null-terminated.
//
// Parameters:
//   - extensions: null-terminated instance extension names
//
// Returns:
//   - DeviceBuilderOption: a function that sets the instance extensions
func WithInstanceExtensions(extensions []string) DeviceBuilderOption {
	return func(c *deviceConfig) {
		c.instanceExtensions = extensions
	}
}
