package zswitch

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mastercactapus/zcal/coord"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Calibrator measures tools against the fixed switch.
type Calibrator struct {
	Config Config
	Motion Motion
	Probe  Probe
	Tools  ToolChanger
	Hooks  Hooks

	// OnResult, if set, is called after each tool result is stored.
	OnResult func(ToolResult)

	Log logrus.FieldLogger

	now func() time.Time
}

// NewCalibrator returns a Calibrator using the standard logger.
func NewCalibrator(cfg Config, m Motion, p Probe, tc ToolChanger, hooks Hooks) *Calibrator {
	return &Calibrator{
		Config: cfg,
		Motion: m,
		Probe:  p,
		Tools:  tc,
		Hooks:  hooks,
		Log:    logrus.StandardLogger(),
		now:    time.Now,
	}
}

// SampleOverrides are per-call overrides of the configured sampling.
// Nil/empty fields keep the configured value.
type SampleOverrides struct {
	Samples   *int
	MaxCount  *int
	Tolerance *float64
	Method    string
}

// CalibrateOptions select what a calibration run measures.
type CalibrateOptions struct {
	// Tools to measure; empty means every tool of the changer.
	Tools []int

	// Ref overrides the configured reference tool.
	Ref *int

	// Method overrides the configured aggregation method.
	Method string
}

// Status is a snapshot for status reporting.
type Status struct {
	ProbeResults map[int]ToolResult `json:"probe_results"`
	HasSwitchPos bool               `json:"has_switch_pos"`
	Method       Method             `json:"z_calc_method"`
	TrimCount    int                `json:"z_trim_count"`
	RefTool      int                `json:"ref_tool"`
}

// Status reports res together with the calibration settings.
func (c *Calibrator) Status(res *Results) Status {
	st := Status{
		ProbeResults: make(map[int]ToolResult, len(res.Tools)),
		HasSwitchPos: c.Config.HasSwitchPos(),
		Method:       c.Config.Method,
		TrimCount:    c.Config.TrimCount,
		RefTool:      res.RefTool,
	}
	for _, r := range res.List() {
		st.ProbeResults[r.Tool] = r
	}
	return st
}

func (c *Calibrator) log() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

func (c *Calibrator) timeNow() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

func (c *Calibrator) sampler() *BatchSampler {
	return &BatchSampler{
		Measurer: &RecoveryLoop{
			Motion:      c.Motion,
			Probe:       c.Probe,
			Request:     c.Config.Probe,
			Lift:        c.Config.RecoverLift,
			Pause:       c.Config.RecoverPause,
			MaxAttempts: c.Config.RecoverMaxAttempts,
			ZSpeed:      c.Config.ZMoveSpeed,
			Log:         c.log(),
		},
		Motion: c.Motion,
		Lift:   c.Config.RecoverLift,
		SafeZ:  c.Config.SafeStartZ,
		ZSpeed: c.Config.ZMoveSpeed,
		Log:    c.log(),
	}
}

func (c *Calibrator) checkHomed() error {
	homed, err := c.Motion.Homed()
	if err != nil {
		return err
	}
	if !homed {
		return ErrNotHomed
	}
	return nil
}

// MoveToSwitch travels to the switch at the current height, then drops to
// the approach height above it.
func (c *Calibrator) MoveToSwitch() error {
	err := c.checkHomed()
	if err != nil {
		return err
	}
	sw, err := c.Config.SwitchPos()
	if err != nil {
		return err
	}

	err = c.Motion.WaitIdle()
	if err != nil {
		return err
	}
	cur, err := c.Motion.Position()
	if err != nil {
		return err
	}
	err = c.Motion.MoveTo(cur.WithXY(sw.X, sw.Y), c.Config.MoveSpeed)
	if err != nil {
		return err
	}

	approach := coord.Point{X: sw.X, Y: sw.Y}.Lift(sw.Z+c.Config.LiftZ, c.Config.SafeStartZ)
	err = c.Motion.MoveTo(approach, c.Config.ZMoveSpeed)
	if err != nil {
		return err
	}
	return c.Motion.WaitIdle()
}

// sampleOptions applies overrides to the configured sampling.
func (c *Calibrator) sampleOptions(o SampleOverrides) (SampleOptions, error) {
	opt := c.Config.SampleOptions()
	if o.Samples != nil {
		opt.Samples = *o.Samples
	}
	if o.MaxCount != nil {
		opt.MaxCount = *o.MaxCount
	}
	if o.Tolerance != nil {
		opt.Tolerance = *o.Tolerance
	}
	if o.Method != "" {
		opt.Method = NormalizeMethod(o.Method)
	}
	return opt, opt.Validate()
}

// ProbeActive measures the active tool at the current position and stores
// its trigger height in res with a zero offset. The toolhead returns to
// where it started.
func (c *Calibrator) ProbeActive(res *Results, o SampleOverrides) (ToolResult, error) {
	opt, err := c.sampleOptions(o)
	if err != nil {
		return ToolResult{}, err
	}
	tool, err := c.Tools.ActiveTool()
	if err != nil {
		return ToolResult{}, err
	}
	start, err := c.Motion.Position()
	if err != nil {
		return ToolResult{}, err
	}

	z, err := c.sampler().Sample(opt)
	if err != nil {
		return ToolResult{}, errors.Wrapf(err, "T%d", tool)
	}
	rec := *res.record(tool, z, c.timeNow())
	c.log().WithFields(logrus.Fields{"tool": tool, "z_trigger": z}).Info("switch probed")

	err = c.Motion.MoveTo(start, c.Config.ZMoveSpeed)
	if err != nil {
		return rec, err
	}
	return rec, c.Motion.WaitIdle()
}

// ResolveReference picks the reference tool: the override if available,
// else def if available, else the smallest available tool. available must
// be sorted and non-empty.
func ResolveReference(available []int, override *int, def int) int {
	if override != nil && containsTool(available, *override) {
		return *override
	}
	if containsTool(available, def) {
		return def
	}
	return available[0]
}

// ProbeOrder filters requested to available tools without duplicates, then
// moves (or inserts) ref to the front. It returns nil if no requested tool
// is available.
func ProbeOrder(requested, available []int, ref int) []int {
	seen := make(map[int]bool, len(requested))
	filtered := make([]int, 0, len(requested))
	for _, t := range requested {
		if seen[t] || !containsTool(available, t) {
			continue
		}
		seen[t] = true
		filtered = append(filtered, t)
	}
	if len(filtered) == 0 {
		return nil
	}

	order := append(make([]int, 0, len(filtered)+1), ref)
	for _, t := range filtered {
		if t != ref {
			order = append(order, t)
		}
	}
	return order
}

// ParseTools parses a comma separated tool list, ignoring tokens that are
// not plain non-negative integers.
func ParseTools(s string) []int {
	var tools []int
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" || strings.TrimLeft(tok, "0123456789") != "" {
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		tools = append(tools, n)
	}
	return tools
}

func containsTool(tools []int, t int) bool {
	for _, v := range tools {
		if v == t {
			return true
		}
	}
	return false
}

func (c *Calibrator) availableTools() []int {
	ids := c.Tools.ToolIDs()
	available := make([]int, len(ids))
	copy(available, ids)
	sort.Ints(available)
	return available
}

// plan validates a run and returns the probing order, reference tool and
// sampling options. Nothing moves.
func (c *Calibrator) plan(opt CalibrateOptions) ([]int, int, SampleOptions, error) {
	var sopt SampleOptions
	err := c.checkHomed()
	if err != nil {
		return nil, 0, sopt, err
	}

	method, origin := c.Config.Method, "config default"
	if strings.TrimSpace(opt.Method) != "" {
		method, err = ParseMethod(opt.Method)
		if err != nil {
			return nil, 0, sopt, err
		}
		origin = "override"
	}

	available := c.availableTools()
	if len(available) == 0 {
		return nil, 0, sopt, ErrNoTools
	}
	requested := opt.Tools
	if len(requested) == 0 {
		requested = c.Tools.ToolIDs()
	}

	ref := ResolveReference(available, opt.Ref, c.Config.DefaultRefTool)
	order := ProbeOrder(requested, available, ref)
	if order == nil {
		return nil, 0, sopt, errors.Wrapf(ErrNoValidTools, "requested %v, available %v", requested, available)
	}
	if !c.Config.HasSwitchPos() {
		return nil, 0, sopt, ErrSwitchPosition
	}

	sopt = c.Config.SampleOptions()
	sopt.Method = method
	err = sopt.Validate()
	if err != nil {
		return nil, 0, sopt, err
	}

	c.log().Infof("Z calculation method = %s (%s)", method, origin)
	return order, ref, sopt, nil
}

// Calibrate measures every selected tool and stores each trigger height in
// res as an offset from the reference tool. res is cleared once validation
// passes.
//
// A fault while measuring a tool aborts the run without running the finish
// hook; results stored so far stay in res.
func (c *Calibrator) Calibrate(res *Results, opt CalibrateOptions) error {
	order, ref, sopt, err := c.plan(opt)
	if err != nil {
		return err
	}

	err = c.Hooks.Run(HookStart)
	if err != nil {
		return err
	}

	res.Reset()
	res.RefTool = ref
	c.log().WithField("ref_tool", ref).Infof("calibrating tools %v", order)

	var refTrigger *float64
	for _, tool := range order {
		z, err := c.measureTool(tool, sopt)
		if err != nil {
			return errors.Wrapf(err, "T%d", tool)
		}
		r := res.record(tool, z, c.timeNow())
		refTool := ref
		r.RefTool = &refTool
		if tool == ref {
			refTrigger = &z
		}
		r.ZOffset = zOffset(z, refTrigger)

		c.log().WithFields(logrus.Fields{
			"tool":      tool,
			"z_trigger": r.ZTrigger,
			"z_offset":  r.ZOffset,
		}).Info("tool calibrated")
		if c.OnResult != nil {
			c.OnResult(*r)
		}
	}

	return c.Hooks.Run(HookFinish)
}

func (c *Calibrator) measureTool(tool int, opt SampleOptions) (float64, error) {
	err := c.Hooks.Run(HookBeforePickup)
	if err != nil {
		return 0, err
	}
	err = c.Tools.SelectTool(tool)
	if err != nil {
		return 0, err
	}
	err = c.Hooks.Run(HookAfterPickup)
	if err != nil {
		return 0, err
	}
	err = c.MoveToSwitch()
	if err != nil {
		return 0, err
	}
	approach, err := c.Motion.Position()
	if err != nil {
		return 0, err
	}
	z, err := c.sampler().Sample(opt)
	if err != nil {
		return 0, err
	}

	err = c.Motion.MoveTo(approach, c.Config.ZMoveSpeed)
	if err != nil {
		return 0, err
	}
	return z, c.Motion.WaitIdle()
}

// zOffset is the trigger height relative to the reference trigger, or 0
// when the reference has not been measured.
func zOffset(z float64, refTrigger *float64) float64 {
	if refTrigger == nil {
		return 0
	}
	return z - *refTrigger
}
