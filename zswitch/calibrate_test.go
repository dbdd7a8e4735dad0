package zswitch

import (
	"testing"

	"github.com/mastercactapus/zcal/coord"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveReference(t *testing.T) {
	available := []int{0, 2, 5}

	assert.Equal(t, 0, ResolveReference(available, nil, 1), "unavailable default falls back to smallest")
	assert.Equal(t, 5, ResolveReference(available, intp(5), 1))
	assert.Equal(t, 2, ResolveReference(available, intp(7), 2), "unavailable override uses default")
	assert.Equal(t, 0, ResolveReference(available, intp(7), 9))
	assert.Equal(t, 2, ResolveReference(available, nil, 2))
}

func TestProbeOrder(t *testing.T) {
	available := []int{0, 2, 5}

	assert.Equal(t, []int{0, 5, 2}, ProbeOrder([]int{5, 2, 5, 9}, available, 0), "first occurrence order kept")
	assert.Equal(t, []int{5, 2, 0}, ProbeOrder([]int{2, 5, 0}, available, 5), "ref moved to the front")
	assert.Equal(t, []int{2}, ProbeOrder([]int{2, 2}, available, 2))
	assert.Nil(t, ProbeOrder([]int{7, 9}, available, 0))
	assert.Nil(t, ProbeOrder(nil, available, 0))
}

func TestParseTools(t *testing.T) {
	assert.Equal(t, []int{0, 1, 12}, ParseTools("0, 1,x,-3,12,"))
	assert.Nil(t, ParseTools(""))
}

func TestCalibrate_EndToEnd(t *testing.T) {
	r := newRig(0, 1)
	r.triggers[0] = []float64{10.00}
	r.triggers[1] = []float64{10.05}
	c := newTestCalibrator(r)

	var seen []ToolResult
	c.OnResult = func(tr ToolResult) { seen = append(seen, tr) }

	res := NewResults(0)
	err := c.Calibrate(res, CalibrateOptions{Tools: ParseTools("0,1"), Ref: intp(0)})
	require.NoError(t, err)

	require.Equal(t, []int{0, 1}, res.IDs())
	t0, _ := res.Get(0)
	t1, _ := res.Get(1)
	assert.Equal(t, 0.0, t0.ZOffset)
	assert.InDelta(t, 0.05, t1.ZOffset, 1e-9)
	assert.Equal(t, 10.05, t1.ZTrigger)
	require.NotNil(t, t1.RefTool)
	assert.Equal(t, 0, *t1.RefTool)
	assert.Equal(t, 2026, t1.LastRun.Year())
	assert.Len(t, seen, 2)

	assert.Equal(t, []string{
		"start",
		"before", "T0", "after",
		"before", "T1", "after",
		"finish",
	}, r.events)
}

func TestCalibrate_Offsets(t *testing.T) {
	r := newRig(0, 1, 2)
	r.triggers[0] = []float64{12.10}
	r.triggers[1] = []float64{12.34}
	r.triggers[2] = []float64{12.50}
	c := newTestCalibrator(r)

	res := NewResults(0)
	err := c.Calibrate(res, CalibrateOptions{Ref: intp(1)})
	require.NoError(t, err)

	assert.Equal(t, 1, res.RefTool)
	assert.Equal(t, []string{"T1", "T0", "T2"}, selected(r.events))
	assert.InDelta(t, -0.24, res.Tools[0].ZOffset, 1e-9)
	assert.Equal(t, 0.0, res.Tools[1].ZOffset)
	assert.InDelta(t, 0.16, res.Tools[2].ZOffset, 1e-9)
}

func selected(events []string) []string {
	var out []string
	for _, e := range events {
		if e[0] == 'T' {
			out = append(out, e)
		}
	}
	return out
}

func TestCalibrate_MoveToSwitch(t *testing.T) {
	r := newRig(0)
	r.triggers[0] = []float64{1}
	c := newTestCalibrator(r)

	require.NoError(t, c.Calibrate(NewResults(0), CalibrateOptions{}))
	require.True(t, len(r.moves) >= 2)
	assert.Equal(t, coord.Point{X: 10, Y: 20, Z: 20}, r.moves[0], "travel at current height")
	assert.Equal(t, coord.Point{X: 10, Y: 20, Z: 6}, r.moves[1], "max(switch z + lift, safe z)")
	assert.Equal(t, coord.Point{X: 10, Y: 20, Z: 6}, r.moves[len(r.moves)-1], "back to approach after sampling")
	assert.Equal(t, coord.Point{X: 10, Y: 20, Z: 6}, r.pos)
}

func TestZOffset(t *testing.T) {
	assert.Equal(t, 0.0, zOffset(12.5, nil), "no reference trigger yet")
	assert.InDelta(t, 0.25, zOffset(12.5, float(12.25)), 1e-9)
	assert.Equal(t, 0.0, zOffset(12.25, float(12.25)), "reference tool")
}

func TestCalibrate_Failure(t *testing.T) {
	r := newRig(0, 1, 2)
	r.triggers[0] = []float64{10.0}
	r.triggers[1] = []float64{10.0, 10.5}
	r.triggers[2] = []float64{10.0}
	c := newTestCalibrator(r)

	res := NewResults(0)
	res.Tools[7] = &ToolResult{Tool: 7}
	err := c.Calibrate(res, CalibrateOptions{})

	var terr *ToleranceError
	require.True(t, errors.As(err, &terr))
	assert.Contains(t, err.Error(), "T1: probe spread")
	assert.Equal(t, []int{0}, res.IDs(), "table cleared, partial results kept")
	assert.NotContains(t, r.events, "finish")
	assert.NotContains(t, r.events, "T2")
}

func TestCalibrate_Validation(t *testing.T) {
	for name, tc := range map[string]struct {
		setup func(r *rig, c *Calibrator)
		opt   CalibrateOptions
		err   error
	}{
		"not homed":      {setup: func(r *rig, c *Calibrator) { r.homed = false }, err: ErrNotHomed},
		"invalid method": {opt: CalibrateOptions{Method: "mode"}, err: ErrInvalidMethod},
		"no tools":       {setup: func(r *rig, c *Calibrator) { r.tools = nil }, err: ErrNoTools},
		"no valid tools": {opt: CalibrateOptions{Tools: []int{8, 9}}, err: ErrNoValidTools},
		"no switch":      {setup: func(r *rig, c *Calibrator) { c.Config.SwitchY = nil }, err: ErrSwitchPosition},
	} {
		t.Run(name, func(t *testing.T) {
			r := newRig(0, 1)
			c := newTestCalibrator(r)
			if tc.setup != nil {
				tc.setup(r, c)
			}
			res := NewResults(0)
			res.Tools[1] = &ToolResult{Tool: 1}

			err := c.Calibrate(res, tc.opt)
			assert.ErrorIs(t, err, tc.err)
			assert.True(t, IsValidation(err))
			assert.Empty(t, r.events, "nothing runs before validation")
			assert.Empty(t, r.moves)
			assert.Len(t, res.Tools, 1, "table untouched")
		})
	}
}

func TestCalibrate_MethodOverride(t *testing.T) {
	r := newRig(0)
	r.triggers[0] = []float64{1.00, 1.00, 1.03}
	c := newTestCalibrator(r)
	c.Config.SamplesTolerance = 0.05

	res := NewResults(0)
	require.NoError(t, c.Calibrate(res, CalibrateOptions{Method: "avg"}))
	assert.InDelta(t, 1.01, res.Tools[0].ZTrigger, 1e-9)
}

func TestProbeActive(t *testing.T) {
	r := newRig(0, 1)
	r.active = 1
	r.triggers[1] = []float64{4.2, 4.21, 4.2}
	start := r.pos
	c := newTestCalibrator(r)

	res := NewResults(0)
	ref := 0
	res.Tools[1] = &ToolResult{Tool: 1, ZOffset: 0.3, RefTool: &ref}

	tr, err := c.ProbeActive(res, SampleOverrides{Samples: intp(3), Method: "bogus"})
	require.NoError(t, err)
	assert.Equal(t, 4.2, tr.ZTrigger, "unknown method falls back to median")
	assert.Equal(t, 0.0, res.Tools[1].ZOffset)
	assert.Equal(t, &ref, res.Tools[1].RefTool, "ref tool kept")
	assert.Equal(t, start, r.pos, "returns to start")
}

func TestProbeActive_Overrides(t *testing.T) {
	r := newRig(0)
	r.active = 0
	c := newTestCalibrator(r)

	_, err := c.ProbeActive(NewResults(0), SampleOverrides{Samples: intp(20)})
	assert.ErrorIs(t, err, ErrInvalidOptions, "max count is not raised to fit")
	assert.Equal(t, 0, r.probes[0])
}

func TestStatus(t *testing.T) {
	r := newRig(0)
	c := newTestCalibrator(r)
	res := NewResults(3)
	res.Tools[0] = &ToolResult{Tool: 0, ZTrigger: 1}

	st := c.Status(res)
	assert.True(t, st.HasSwitchPos)
	assert.Equal(t, MethodMedian, st.Method)
	assert.Equal(t, 1, st.TrimCount)
	assert.Equal(t, 3, st.RefTool)
	assert.Equal(t, 1.0, st.ProbeResults[0].ZTrigger)
}
