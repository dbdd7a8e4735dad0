package machine

import (
	"fmt"
	"io"
)

// An Adapter represents the minimal CNC machine interface.
type Adapter interface {
	Probes() []ProbeResult
	ResetProbes()

	// LastAlarm returns the alarm latched since the last Unlock, if any.
	LastAlarm() *AlarmError

	// Unlock clears an alarm lock (`$X`) and the latched alarm.
	Unlock() error

	State() chan State
	CurrentState() State

	WriteByte(byte) error
	Write([]byte) (int, error)
	ReadFrom(io.Reader) (int64, error)
}

// AlarmProbeInitialState is reported when the probe is already triggered
// before a G38.2 cycle starts.
const AlarmProbeInitialState = 4

var alarmMessages = map[int]string{
	1: "hard limit triggered",
	2: "motion target exceeds machine travel",
	3: "reset while in motion",
	4: "probe not in the expected initial state",
	5: "probe did not contact the workpiece",
	6: "homing fail: reset during active homing cycle",
	7: "homing fail: safety door opened during homing",
	8: "homing fail: pull off failed to clear limit switch",
	9: "homing fail: could not find limit switch",
}

// AlarmError is a controller alarm.
type AlarmError struct {
	Code int
}

func (a *AlarmError) Error() string {
	if msg, ok := alarmMessages[a.Code]; ok {
		return fmt.Sprintf("ALARM:%d (%s)", a.Code, msg)
	}
	return fmt.Sprintf("ALARM:%d", a.Code)
}
