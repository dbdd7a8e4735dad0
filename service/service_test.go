package service

import (
	"sync"
	"testing"

	"github.com/mastercactapus/zcal/command"
	"github.com/mastercactapus/zcal/coord"
	"github.com/mastercactapus/zcal/machine"
	"github.com/mastercactapus/zcal/machine/sim"
	"github.com/mastercactapus/zcal/store"
	"github.com/mastercactapus/zcal/zswitch"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRecorder struct {
	mx   sync.Mutex
	runs []store.Run
}

func (m *memRecorder) RecordRun(r store.Run) (int64, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.runs = append(m.runs, r)
	return int64(len(m.runs)), nil
}

type events struct {
	mx   sync.Mutex
	list []Event
}

func (e *events) add(ev Event) {
	e.mx.Lock()
	e.list = append(e.list, ev)
	e.mx.Unlock()
}

func (e *events) types() []string {
	e.mx.Lock()
	defer e.mx.Unlock()
	var t []string
	for _, ev := range e.list {
		t = append(t, ev.Type)
	}
	return t
}

func newTestService(t *testing.T, hooks zswitch.Hooks) (*Service, *memRecorder, *events) {
	a := sim.New(coord.Point{X: 100, Y: 100, Z: 20}, map[int]*sim.Tool{
		0: {Trigger: 2.0},
		1: {Trigger: 2.1, PreTriggered: 1},
		2: {Trigger: 1.9, Noise: []float64{0, 0.002}},
	})
	a.LoadTool(0)
	m := machine.NewMachine(a, machine.Options{
		Tools:        []int{0, 1, 2},
		ChangePos:    coord.Point{Z: 10},
		TravelHeight: 30,
		ProbeFeed:    300,
		InitialTool:  0,
	})

	x, y, z := 10.0, 20.0, 0.0
	cfg := zswitch.DefaultConfig()
	cfg.SwitchX, cfg.SwitchY, cfg.SwitchZ = &x, &y, &z
	cfg.Samples = 3
	cfg.SamplesMaxCount = 9
	cfg.RecoverPause = 0

	rec := &memRecorder{}
	s := New(zswitch.NewCalibrator(cfg, m, m, m, hooks), rec)
	ev := &events{}
	s.Subscribe(ev.add)
	return s, rec, ev
}

func TestService_Calibrate(t *testing.T) {
	s, rec, ev := newTestService(t, zswitch.Hooks{})

	out, err := s.Exec("CALIBRATE_ALL_Z_OFFSETS REF=1")
	require.NoError(t, err)
	assert.Equal(t, "reference T1\nT0 z_offset=-0.1000\nT1 z_offset=0.0000\nT2 z_offset=-0.2000", out)

	st := s.Status()
	assert.Equal(t, 1, st.RefTool)
	assert.True(t, st.HasSwitchPos)
	require.Len(t, st.ProbeResults, 3)
	assert.InDelta(t, -0.2, st.ProbeResults[2].ZOffset, 1e-9)

	require.Len(t, rec.runs, 1)
	run := rec.runs[0]
	assert.Equal(t, command.CalibrateAllZOffsets, run.Command)
	assert.Equal(t, 1, *run.RefTool)
	assert.Equal(t, "median", run.Method)
	assert.Empty(t, run.Error)
	assert.Len(t, run.Results, 3)

	types := ev.types()
	assert.Equal(t, 3, count(types, EventResult))
	assert.Equal(t, EventStatus, types[len(types)-1])
	assert.Contains(t, types, EventRun)
}

func count(list []string, v string) (n int) {
	for _, s := range list {
		if s == v {
			n++
		}
	}
	return n
}

func TestService_Validation(t *testing.T) {
	s, rec, _ := newTestService(t, zswitch.Hooks{})

	_, err := s.Exec("CALIBRATE_ALL_Z_OFFSETS TOOLS=7,8")
	assert.True(t, errors.Is(err, zswitch.ErrNoValidTools))

	_, err = s.Exec("CALIBRATE_ALL_Z_OFFSETS Z_CALC=mode")
	assert.True(t, errors.Is(err, zswitch.ErrInvalidMethod))

	_, err = s.Exec("CALIBRATE_ALL_Z_OFFSETS REF=-1")
	assert.True(t, errors.Is(err, command.ErrInvalidParam))

	_, err = s.Exec("PROBE_ZSWITCH SAMPLES=5 SAMPLES_MAX_COUNT=4")
	assert.True(t, errors.Is(err, command.ErrInvalidParam))

	_, err = s.Exec("PROBE_ZSWITCH SAMPLES_MAX_COUNT=2")
	assert.True(t, errors.Is(err, command.ErrInvalidParam), "below configured samples")

	_, err = s.Exec("HOME_ALL")
	assert.True(t, errors.Is(err, command.ErrUnknown))

	assert.Empty(t, rec.runs)
	assert.Empty(t, s.Status().ProbeResults)
}

func TestService_Probe(t *testing.T) {
	s, rec, _ := newTestService(t, zswitch.Hooks{})

	_, err := s.Exec("MOVE_TO_ZSWITCH")
	require.NoError(t, err)

	out, err := s.Exec("PROBE_ZSWITCH SAMPLES=2 Z_CALC=avg")
	require.NoError(t, err)
	assert.Equal(t, "T0 z_trigger=2.0000", out)

	r, ok := s.Status().ProbeResults[0]
	require.True(t, ok)
	assert.Equal(t, 0.0, r.ZOffset)
	assert.Nil(t, r.RefTool)

	require.Len(t, rec.runs, 1)
	assert.Equal(t, "average", rec.runs[0].Method)
	assert.Nil(t, rec.runs[0].RefTool)
	assert.Len(t, rec.runs[0].Results, 1)
}

func TestService_Busy(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	s, _, _ := newTestService(t, zswitch.Hooks{
		Start: func() error {
			close(entered)
			<-release
			return nil
		},
	})

	done := make(chan error, 1)
	go func() { done <- s.CalibrateAll(zswitch.CalibrateOptions{Tools: []int{0}}) }()
	<-entered

	_, err := s.Exec("MOVE_TO_ZSWITCH")
	assert.Equal(t, ErrBusy, err)
	_, err = s.Exec("AXISCOPE_START_GCODE")
	assert.Equal(t, ErrBusy, err)

	// status stays readable
	assert.True(t, s.Status().HasSwitchPos)

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, s.MoveToSwitch())
}

func TestService_RunHook(t *testing.T) {
	var ran []string
	hook := func(name string) func() error {
		return func() error { ran = append(ran, name); return nil }
	}
	s, _, _ := newTestService(t, zswitch.Hooks{
		Start:  hook("start"),
		Finish: func() error { return errors.New("boom") },
	})

	_, err := s.Exec("AXISCOPE_START_GCODE")
	require.NoError(t, err)
	_, err = s.Exec("axiscope_before_pickup_gcode")
	require.NoError(t, err, "unset hooks do nothing")
	assert.Equal(t, []string{"start"}, ran)

	_, err = s.Exec("AXISCOPE_FINISH_GCODE")
	var herr *zswitch.HookError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, zswitch.HookFinish, herr.Name)
}

func TestService_CalibrateFailure(t *testing.T) {
	s, rec, _ := newTestService(t, zswitch.Hooks{})
	s.cal.Config.RecoverMaxAttempts = 1

	_, err := s.Exec("CALIBRATE_ALL_Z_OFFSETS TOOLS=0,1")
	var rerr *zswitch.RecoveryError
	require.True(t, errors.As(err, &rerr))

	st := s.Status()
	assert.Len(t, st.ProbeResults, 1, "partial results kept")
	require.Len(t, rec.runs, 1)
	assert.Contains(t, rec.runs[0].Error, "T1")
}
