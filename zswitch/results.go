package zswitch

import (
	"sort"
	"time"
)

// ToolResult is the latest measurement of one tool.
type ToolResult struct {
	Tool     int     `json:"tool"`
	ZTrigger float64 `json:"z_trigger"`

	// ZOffset is ZTrigger relative to the reference tool's trigger height.
	ZOffset float64 `json:"z_offset"`

	// RefTool is nil until the tool is measured by a calibration run.
	RefTool *int `json:"ref_tool,omitempty"`

	LastRun time.Time `json:"last_run"`
}

// Results is the per-tool result table.
//
// It is not safe for concurrent use; the owner is expected to serialize
// access and hand out copies.
type Results struct {
	Tools map[int]*ToolResult `json:"probe_results"`

	// RefTool is the reference tool of the last calibration run.
	RefTool int `json:"ref_tool"`
}

// NewResults returns an empty table with the given reference tool.
func NewResults(refTool int) *Results {
	return &Results{
		Tools:   make(map[int]*ToolResult),
		RefTool: refTool,
	}
}

// Reset drops every tool result.
func (r *Results) Reset() {
	r.Tools = make(map[int]*ToolResult)
}

// Get returns a copy of the result for tool.
func (r *Results) Get(tool int) (ToolResult, bool) {
	res, ok := r.Tools[tool]
	if !ok {
		return ToolResult{}, false
	}
	return *res, true
}

// IDs returns the measured tools in ascending order.
func (r *Results) IDs() []int {
	ids := make([]int, 0, len(r.Tools))
	for id := range r.Tools {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// List returns copies of every result, by ascending tool.
func (r *Results) List() []ToolResult {
	list := make([]ToolResult, 0, len(r.Tools))
	for _, id := range r.IDs() {
		list = append(list, *r.Tools[id])
	}
	return list
}

// Clone returns a deep copy.
func (r *Results) Clone() *Results {
	c := NewResults(r.RefTool)
	for id, res := range r.Tools {
		cp := *res
		if res.RefTool != nil {
			ref := *res.RefTool
			cp.RefTool = &ref
		}
		c.Tools[id] = &cp
	}
	return c
}

// record stores a fresh trigger height with a zero offset, keeping any
// reference tool from an earlier run.
func (r *Results) record(tool int, z float64, at time.Time) *ToolResult {
	res, ok := r.Tools[tool]
	if !ok {
		res = &ToolResult{Tool: tool}
		r.Tools[tool] = res
	}
	res.ZTrigger = z
	res.ZOffset = 0
	res.LastRun = at
	return res
}
