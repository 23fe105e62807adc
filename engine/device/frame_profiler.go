package device

import (
	"unsafe"

	vk "github.com/goki/vulkan"
)

// maxScopesPerFrame bounds the timestamp query pool; two queries per scope.
const maxScopesPerFrame = 128

// ScopeTiming is a resolved GPU timing for one named scope of the previous frame.
type ScopeTiming struct {
	// Name is the scope name, typically the pass name.
	Name string

	// Milliseconds is the GPU time spent between the scope's begin and end timestamps.
	Milliseconds float64
}

// ActiveScope is a begin/end timestamp pair in flight for the current frame.
type ActiveScope struct {
	name       string
	beginQuery uint32
	endQuery   uint32
	valid      bool
}

// FrameProfiler records paired GPU timestamps around named scopes and resolves
// them to millisecond timings one frame later. One instance lives on the
// device; the graph opens a scope per pass when profiling is enabled.
type FrameProfiler struct {
	queryPool       vk.QueryPool
	timestampPeriod float32

	nextQuery uint32
	scopes    []ActiveScope

	// results holds the previous frame's resolved timings.
	results []ScopeTiming
}

func newFrameProfiler(handle vk.Device, timestampPeriod float32) *FrameProfiler {
	var pool vk.QueryPool
	ret := vk.CreateQueryPool(handle, &vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  vk.QueryTypeTimestamp,
		QueryCount: maxScopesPerFrame * 2,
	}, nil, &pool)
	if ret != vk.Success {
		panic("device: failed to create timestamp query pool")
	}

	return &FrameProfiler{
		queryPool:       pool,
		timestampPeriod: timestampPeriod,
		scopes:          make([]ActiveScope, 0, maxScopesPerFrame),
	}
}

// BeginFrame resolves the previous frame's queries and resets the pool for the
// new frame. Must be called with the frame command buffer in the recording
// state, before any scopes are opened.
//
// Parameters:
//   - handle: the logical device
//   - cb: the frame command buffer
func (p *FrameProfiler) BeginFrame(handle vk.Device, cb vk.CommandBuffer) {
	p.resolve(handle)

	vk.CmdResetQueryPool(cb, p.queryPool, 0, maxScopesPerFrame*2)
	p.nextQuery = 0
	p.scopes = p.scopes[:0]
}

// BeginScope opens a named timing scope by writing a top-of-pipe timestamp.
// Scopes beyond the pool capacity are silently dropped.
//
// Parameters:
//   - cb: the frame command buffer
//   - name: the scope name reported with the timing
//
// Returns:
//   - ActiveScope: the open scope, passed back to EndScope
func (p *FrameProfiler) BeginScope(cb vk.CommandBuffer, name string) ActiveScope {
	if p.nextQuery+2 > maxScopesPerFrame*2 {
		return ActiveScope{name: name}
	}
	scope := ActiveScope{
		name:       name,
		beginQuery: p.nextQuery,
		endQuery:   p.nextQuery + 1,
		valid:      true,
	}
	p.nextQuery += 2

	vk.CmdWriteTimestamp(cb, vk.PipelineStageFlagBits(vk.PipelineStageTopOfPipeBit), p.queryPool, scope.beginQuery)
	return scope
}

// EndScope closes a timing scope by writing a bottom-of-pipe timestamp.
//
// Parameters:
//   - cb: the frame command buffer
//   - scope: the scope returned by BeginScope
func (p *FrameProfiler) EndScope(cb vk.CommandBuffer, scope ActiveScope) {
	if !scope.valid {
		return
	}
	vk.CmdWriteTimestamp(cb, vk.PipelineStageFlagBits(vk.PipelineStageBottomOfPipeBit), p.queryPool, scope.endQuery)
	p.scopes = append(p.scopes, scope)
}

// Results returns the resolved scope timings of the most recently completed frame.
//
// Returns:
//   - []ScopeTiming: per-scope GPU timings, in scope-open order
func (p *FrameProfiler) Results() []ScopeTiming {
	return p.results
}

// resolve reads back the previous frame's timestamps. Uses the WAIT flag: the
// frame fence has already been waited on by the host, so the wait is a formality.
func (p *FrameProfiler) resolve(handle vk.Device) {
	if len(p.scopes) == 0 {
		p.results = p.results[:0]
		return
	}

	data := make([]uint64, p.nextQuery)
	ret := vk.GetQueryPoolResults(handle, p.queryPool, 0, p.nextQuery,
		uint64(len(data)*8), unsafe.Pointer(&data[0]), 8,
		vk.QueryResultFlags(vk.QueryResult64Bit|vk.QueryResultWaitBit))
	if ret != vk.Success {
		p.results = p.results[:0]
		return
	}

	p.results = p.results[:0]
	for _, scope := range p.scopes {
		ticks := data[scope.endQuery] - data[scope.beginQuery]
		ms := float64(ticks) * float64(p.timestampPeriod) / 1e6
		p.results = append(p.results, ScopeTiming{Name: scope.name, Milliseconds: ms})
	}
}

func (p *FrameProfiler) destroy(handle vk.Device) {
	vk.DestroyQueryPool(handle, p.queryPool, nil)
}
