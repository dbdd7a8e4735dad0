// Package command parses textual commands of the form `NAME KEY=VALUE ...`.
package command

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	MoveToZSwitch        = "MOVE_TO_ZSWITCH"
	ProbeZSwitch         = "PROBE_ZSWITCH"
	CalibrateAllZOffsets = "CALIBRATE_ALL_Z_OFFSETS"

	StartGCode        = "AXISCOPE_START_GCODE"
	BeforePickupGCode = "AXISCOPE_BEFORE_PICKUP_GCODE"
	AfterPickupGCode  = "AXISCOPE_AFTER_PICKUP_GCODE"
	FinishGCode       = "AXISCOPE_FINISH_GCODE"
)

// Parameter names.
const (
	Samples          = "SAMPLES"
	SamplesTolerance = "SAMPLES_TOLERANCE"
	SamplesMaxCount  = "SAMPLES_MAX_COUNT"
	ZCalc            = "Z_CALC"
	Tools            = "TOOLS"
	Ref              = "REF"
)

// ErrInvalidParam is returned for malformed or out of range parameters.
var ErrInvalidParam = errors.New("invalid parameter")

// ErrUnknown is returned for a command name with no handler.
var ErrUnknown = errors.New("unknown command")

// Command is a parsed command line.
type Command struct {
	Name   string
	Params map[string]string
}

// Parse reads a command line. The name and parameter keys are case
// insensitive and stored upper case.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, errors.Wrap(ErrInvalidParam, "empty command")
	}
	cmd := Command{
		Name:   strings.ToUpper(fields[0]),
		Params: make(map[string]string, len(fields)-1),
	}
	for _, f := range fields[1:] {
		parts := strings.SplitN(f, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return Command{}, errors.Wrapf(ErrInvalidParam, "malformed parameter %q", f)
		}
		cmd.Params[strings.ToUpper(parts[0])] = parts[1]
	}
	return cmd, nil
}

// New builds a command from a parameter map, dropping empty values.
func New(name string, params map[string]string) Command {
	cmd := Command{Name: strings.ToUpper(name), Params: make(map[string]string, len(params))}
	for k, v := range params {
		if v = strings.TrimSpace(v); v != "" {
			cmd.Params[strings.ToUpper(k)] = v
		}
	}
	return cmd
}

func (c Command) String() string {
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(c.Name)
	for _, k := range keys {
		sb.WriteString(" " + k + "=" + c.Params[k])
	}
	return sb.String()
}

// Get returns the raw value of key.
func (c Command) Get(key string) (string, bool) {
	v, ok := c.Params[key]
	return v, ok
}

// OptInt returns nil if key is absent, otherwise its value which must be
// at least min.
func (c Command) OptInt(key string, min int) (*int, error) {
	s, ok := c.Params[key]
	if !ok {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidParam, "%s: not an integer: %q", key, s)
	}
	if v < min {
		return nil, errors.Wrapf(ErrInvalidParam, "%s: must have minimum of %d", key, min)
	}
	return &v, nil
}

// OptFloat returns nil if key is absent, otherwise its value which must be
// finite and at least min.
func (c Command) OptFloat(key string, min float64) (*float64, error) {
	s, ok := c.Params[key]
	if !ok {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidParam, "%s: not a number: %q", key, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, errors.Wrapf(ErrInvalidParam, "%s: must be finite: %q", key, s)
	}
	if v < min {
		return nil, errors.Wrapf(ErrInvalidParam, "%s: must have minimum of %g", key, min)
	}
	return &v, nil
}
