package zswitch

import (
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Measurer takes a single trigger height measurement.
type Measurer interface {
	Measure() (float64, error)
}

// SampleOptions configure one aggregated measurement.
type SampleOptions struct {
	// Samples is the batch size.
	Samples int

	// MaxCount is the total number of samples allowed across batches.
	MaxCount int

	// Tolerance is the maximum accepted spread of a batch.
	Tolerance float64

	Method    Method
	TrimCount int
}

// Validate checks the options; values are never clamped.
func (o SampleOptions) Validate() error {
	switch {
	case o.Samples < 1:
		return errors.Wrapf(ErrInvalidOptions, "SAMPLES must be >= 1, got %d", o.Samples)
	case o.MaxCount < o.Samples:
		return errors.Wrapf(ErrInvalidOptions, "SAMPLES_MAX_COUNT must be >= SAMPLES (%d), got %d", o.Samples, o.MaxCount)
	case !(o.Tolerance >= 0) || math.IsInf(o.Tolerance, 1):
		return errors.Wrapf(ErrInvalidOptions, "SAMPLES_TOLERANCE must be >= 0, got %g", o.Tolerance)
	case o.TrimCount < 0:
		return errors.Wrapf(ErrInvalidOptions, "trim count must be >= 0, got %d", o.TrimCount)
	}
	return nil
}

// BatchSampler collects batches of measurements until one settles within
// tolerance.
//
// After every measurement the tool retreats to at least SafeZ, by at least
// Lift, so each sample starts from the same kind of approach.
type BatchSampler struct {
	Measurer Measurer
	Motion   Motion

	Lift   float64
	SafeZ  float64
	ZSpeed float64

	Log logrus.FieldLogger
}

// Sample returns the reduced trigger height of the first batch whose spread
// is within tolerance. Only whole batches are started, so no more than
// MaxCount samples are ever taken.
func (s *BatchSampler) Sample(opt SampleOptions) (float64, error) {
	err := opt.Validate()
	if err != nil {
		return 0, err
	}

	var total, batches int
	var lastSpread float64
	for total+opt.Samples <= opt.MaxCount {
		batches++
		batch := make([]float64, 0, opt.Samples)
		for len(batch) < opt.Samples {
			z, err := s.Measurer.Measure()
			if err != nil {
				return 0, err
			}
			batch = append(batch, z)
			total++

			err = s.retreat()
			if err != nil {
				return 0, err
			}
		}

		lastSpread = Spread(batch)
		if lastSpread <= opt.Tolerance {
			return Reduce(batch, opt.Method, opt.TrimCount), nil
		}
		s.log().WithFields(logrus.Fields{
			"batch":     batches,
			"spread":    lastSpread,
			"tolerance": opt.Tolerance,
		}).Warn("probe spread out of tolerance, discarding batch")
	}

	return 0, &ToleranceError{
		Spread:    lastSpread,
		Tolerance: opt.Tolerance,
		Batches:   opt.MaxCount / opt.Samples,
		Samples:   opt.Samples,
	}
}

func (s *BatchSampler) retreat() error {
	err := s.Motion.WaitIdle()
	if err != nil {
		return err
	}
	pos, err := s.Motion.Position()
	if err != nil {
		return err
	}
	err = s.Motion.MoveTo(pos.Lift(s.Lift, s.SafeZ), s.ZSpeed)
	if err != nil {
		return err
	}
	return s.Motion.WaitIdle()
}

func (s *BatchSampler) log() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}
