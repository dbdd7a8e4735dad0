package zswitch

import (
	"time"

	"github.com/sirupsen/logrus"
)

// RecoveryLoop measures one trigger height, recovering from a switch that
// reads as triggered before the probing move starts.
//
// Recovery lifts Z by Lift, waits for the move, and pauses for Pause before
// the next attempt. Any other probe fault is returned as-is.
type RecoveryLoop struct {
	Motion  Motion
	Probe   Probe
	Request ProbeRequest

	Lift        float64
	Pause       time.Duration
	MaxAttempts int
	ZSpeed      float64

	Log logrus.FieldLogger
}

// Measure returns one trigger height, or a *RecoveryError once MaxAttempts
// pre-triggered faults have been seen.
func (r *RecoveryLoop) Measure() (float64, error) {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for i := 1; i <= attempts; i++ {
		z, err := r.Probe.Probe(r.Request)
		if err == nil {
			return z, nil
		}
		if !IsPreTriggered(err) {
			return 0, err
		}
		last = err
		r.log().WithField("attempt", i).WithError(err).Warn("switch triggered before probing, lifting")

		err = r.recover()
		if err != nil {
			return 0, err
		}
	}

	return 0, &RecoveryError{Attempts: attempts, Last: last}
}

func (r *RecoveryLoop) recover() error {
	err := r.Motion.WaitIdle()
	if err != nil {
		return err
	}
	pos, err := r.Motion.Position()
	if err != nil {
		return err
	}
	err = r.Motion.MoveTo(pos.WithZ(pos.Z+r.Lift), r.ZSpeed)
	if err != nil {
		return err
	}
	err = r.Motion.WaitIdle()
	if err != nil {
		return err
	}
	if r.Pause > 0 {
		return r.Motion.Dwell(r.Pause)
	}
	return nil
}

func (r *RecoveryLoop) log() logrus.FieldLogger {
	if r.Log == nil {
		return logrus.StandardLogger()
	}
	return r.Log
}
