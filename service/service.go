// Package service runs zswitch commands one at a time over a shared result
// table.
package service

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mastercactapus/zcal/command"
	"github.com/mastercactapus/zcal/store"
	"github.com/mastercactapus/zcal/zswitch"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrBusy is returned when a command is issued while another is running.
var ErrBusy = errors.New("busy: another command is running")

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(store.Run) (int64, error)
}

// Event types.
const (
	EventStatus = "status"
	EventResult = "result"
	EventHold   = "hold"
	EventRun    = "run"
)

// Event is published to observers as runs progress.
type Event struct {
	Type    string              `json:"type"`
	Status  *zswitch.Status     `json:"status,omitempty"`
	Result  *zswitch.ToolResult `json:"result,omitempty"`
	Command string              `json:"command,omitempty"`
	Message string              `json:"message,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// Service owns the result table and serializes commands.
type Service struct {
	cal *zswitch.Calibrator
	rec Recorder

	run sync.Mutex

	mx      sync.RWMutex
	results *zswitch.Results
	work    *zswitch.Results
	subs    []func(Event)

	log logrus.FieldLogger
	now func() time.Time
}

// New returns a Service driving cal. rec may be nil.
func New(cal *zswitch.Calibrator, rec Recorder) *Service {
	s := &Service{
		cal:     cal,
		rec:     rec,
		results: zswitch.NewResults(cal.Config.DefaultRefTool),
		log:     logrus.WithField("component", "service"),
		now:     time.Now,
	}
	cal.OnResult = s.onResult
	return s
}

// Subscribe registers fn to receive every published event.
func (s *Service) Subscribe(fn func(Event)) {
	s.mx.Lock()
	s.subs = append(s.subs, fn)
	s.mx.Unlock()
}

// Publish sends e to all subscribers.
func (s *Service) Publish(e Event) {
	s.mx.RLock()
	subs := s.subs
	s.mx.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}

// Status returns a snapshot of the results and settings.
func (s *Service) Status() zswitch.Status {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.cal.Status(s.results)
}

func (s *Service) publishStatus() {
	st := s.Status()
	s.Publish(Event{Type: EventStatus, Status: &st})
}

// onResult runs on the command goroutine while the run lock is held.
func (s *Service) onResult(r zswitch.ToolResult) {
	s.mx.Lock()
	s.results = s.work.Clone()
	s.mx.Unlock()
	s.Publish(Event{Type: EventResult, Result: &r})
	s.publishStatus()
}

// begin takes the run lock and a working copy of the results.
func (s *Service) begin() (*zswitch.Results, error) {
	if !s.run.TryLock() {
		return nil, ErrBusy
	}
	s.mx.Lock()
	s.work = s.results.Clone()
	s.mx.Unlock()
	return s.work, nil
}

// end commits the working copy and releases the run lock.
func (s *Service) end(commit bool) {
	s.mx.Lock()
	if commit {
		s.results = s.work
	}
	s.work = nil
	s.mx.Unlock()
	s.run.Unlock()
	s.publishStatus()
}

func (s *Service) record(cmd string, started time.Time, res *zswitch.Results, ref *int, method string, err error) {
	run := store.Run{
		Command:    cmd,
		StartedAt:  started,
		FinishedAt: s.now(),
		RefTool:    ref,
		Method:     method,
	}
	if res != nil {
		run.Results = res.List()
	}
	ev := Event{Type: EventRun, Command: cmd}
	if err != nil {
		run.Error = err.Error()
		ev.Error = run.Error
	}
	s.Publish(ev)
	if s.rec == nil {
		return
	}
	_, rerr := s.rec.RecordRun(run)
	if rerr != nil {
		s.log.WithError(rerr).Error("record run")
	}
}

// MoveToSwitch moves the toolhead above the switch.
func (s *Service) MoveToSwitch() error {
	_, err := s.begin()
	if err != nil {
		return err
	}
	defer s.end(false)
	return s.cal.MoveToSwitch()
}

// ProbeSwitch measures the active tool from the current position.
func (s *Service) ProbeSwitch(o zswitch.SampleOverrides) (zswitch.ToolResult, error) {
	work, err := s.begin()
	if err != nil {
		return zswitch.ToolResult{}, err
	}
	defer s.end(true)

	started := s.now()
	r, err := s.cal.ProbeActive(work, o)
	if zswitch.IsValidation(err) {
		return r, err
	}
	method := s.cal.Config.Method
	if o.Method != "" {
		method = zswitch.NormalizeMethod(o.Method)
	}
	var res *zswitch.Results
	if !r.LastRun.IsZero() {
		res = zswitch.NewResults(work.RefTool)
		res.Tools[r.Tool] = &r
		s.Publish(Event{Type: EventResult, Result: &r})
	}
	s.record(command.ProbeZSwitch, started, res, nil, method.String(), err)
	return r, err
}

// CalibrateAll measures every selected tool relative to the reference.
func (s *Service) CalibrateAll(opt zswitch.CalibrateOptions) error {
	work, err := s.begin()
	if err != nil {
		return err
	}
	defer s.end(true)

	started := s.now()
	err = s.cal.Calibrate(work, opt)
	if zswitch.IsValidation(err) {
		return err
	}

	method := s.cal.Config.Method
	if strings.TrimSpace(opt.Method) != "" {
		// already validated by Calibrate
		method, _ = zswitch.ParseMethod(opt.Method)
	}
	ref := work.RefTool
	s.record(command.CalibrateAllZOffsets, started, work, &ref, method.String(), err)
	return err
}

// RunHook runs one configured hook script by hand.
func (s *Service) RunHook(name string) error {
	_, err := s.begin()
	if err != nil {
		return err
	}
	defer s.end(false)
	return s.cal.Hooks.Run(name)
}

var hookCommands = map[string]string{
	command.StartGCode:        zswitch.HookStart,
	command.BeforePickupGCode: zswitch.HookBeforePickup,
	command.AfterPickupGCode:  zswitch.HookAfterPickup,
	command.FinishGCode:       zswitch.HookFinish,
}

// Exec parses and runs one command line, returning a short response.
func (s *Service) Exec(line string) (string, error) {
	cmd, err := command.Parse(line)
	if err != nil {
		return "", err
	}
	return s.Dispatch(cmd)
}

// Dispatch runs a parsed command.
func (s *Service) Dispatch(cmd command.Command) (string, error) {
	log := s.log.WithField("command", cmd.String())
	log.Debug("dispatch")

	switch cmd.Name {
	case command.MoveToZSwitch:
		err := s.MoveToSwitch()
		if err != nil {
			return "", err
		}
		return "moved to switch", nil

	case command.ProbeZSwitch:
		o, err := s.sampleOverrides(cmd)
		if err != nil {
			return "", err
		}
		r, err := s.ProbeSwitch(o)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("T%d z_trigger=%.4f", r.Tool, r.ZTrigger), nil

	case command.CalibrateAllZOffsets:
		var opt zswitch.CalibrateOptions
		if v, ok := cmd.Get(command.Tools); ok {
			opt.Tools = zswitch.ParseTools(v)
		}
		ref, err := cmd.OptInt(command.Ref, 0)
		if err != nil {
			return "", err
		}
		opt.Ref = ref
		opt.Method, _ = cmd.Get(command.ZCalc)

		err = s.CalibrateAll(opt)
		if err != nil {
			return "", err
		}
		st := s.Status()
		var sb strings.Builder
		fmt.Fprintf(&sb, "reference T%d", st.RefTool)
		for _, id := range sortedKeys(st.ProbeResults) {
			fmt.Fprintf(&sb, "\nT%d z_offset=%.4f", id, st.ProbeResults[id].ZOffset)
		}
		return sb.String(), nil
	}

	if hook, ok := hookCommands[cmd.Name]; ok {
		return "", s.RunHook(hook)
	}

	return "", errors.Wrap(command.ErrUnknown, cmd.Name)
}

func (s *Service) sampleOverrides(cmd command.Command) (o zswitch.SampleOverrides, err error) {
	o.Samples, err = cmd.OptInt(command.Samples, 1)
	if err != nil {
		return o, err
	}
	minMax := s.cal.Config.Samples
	if o.Samples != nil {
		minMax = *o.Samples
	}
	o.MaxCount, err = cmd.OptInt(command.SamplesMaxCount, minMax)
	if err != nil {
		return o, err
	}
	o.Tolerance, err = cmd.OptFloat(command.SamplesTolerance, 0)
	if err != nil {
		return o, err
	}
	o.Method, _ = cmd.Get(command.ZCalc)
	return o, nil
}

func sortedKeys(m map[int]zswitch.ToolResult) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
