package zswitch

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSampler(r *rig) *BatchSampler {
	return &BatchSampler{
		Measurer: newTestLoop(r),
		Motion:   r,
		Lift:     2,
		SafeZ:    6,
		ZSpeed:   10,
	}
}

func TestBatchSampler_FirstBatch(t *testing.T) {
	r := newRig(0)
	r.active = 0
	r.triggers[0] = []float64{1.00, 1.01, 1.02}

	z, err := newTestSampler(r).Sample(SampleOptions{Samples: 3, MaxCount: 9, Tolerance: 0.05, Method: MethodAverage})
	require.NoError(t, err)
	assert.InDelta(t, 1.01, z, 1e-9)
	assert.Equal(t, 3, r.probes[0])

	require.Len(t, r.moves, 3)
	for _, m := range r.moves {
		assert.Equal(t, 6.0, m.Z, "retreat to safe height")
	}
}

func TestBatchSampler_RetryBatch(t *testing.T) {
	r := newRig(0)
	r.active = 0
	// first batch is noisy, second one settles
	r.triggers[0] = []float64{1.0, 1.5, 1.0, 1.0, 1.01, 1.02}

	z, err := newTestSampler(r).Sample(SampleOptions{Samples: 3, MaxCount: 7, Tolerance: 0.05})
	require.NoError(t, err)
	assert.Equal(t, 1.01, z)
	assert.Equal(t, 6, r.probes[0])
}

func TestBatchSampler_Exhausted(t *testing.T) {
	for _, tc := range []struct{ samples, max int }{
		{3, 3}, {3, 8}, {3, 9}, {4, 11}, {1, 5},
	} {
		r := newRig(0)
		r.active = 0
		r.triggers[0] = []float64{1.0, 1.2}

		_, err := newTestSampler(r).Sample(SampleOptions{Samples: tc.samples, MaxCount: tc.max, Tolerance: 0.1})
		if tc.samples == 1 {
			// single-sample batches always have zero spread
			assert.NoError(t, err)
			continue
		}

		var terr *ToleranceError
		require.True(t, errors.As(err, &terr), "%+v", tc)
		assert.Equal(t, tc.max/tc.samples, terr.Batches)
		assert.Equal(t, tc.samples, terr.Samples)
		assert.InDelta(t, 0.2, terr.Spread, 1e-9)
		assert.LessOrEqual(t, r.probes[0], tc.max)
		assert.Equal(t, (tc.max/tc.samples)*tc.samples, r.probes[0], "only whole batches")
	}
}

func TestBatchSampler_Message(t *testing.T) {
	err := &ToleranceError{Spread: 0.2, Tolerance: 0.02, Batches: 3, Samples: 3}
	assert.EqualError(t, err, "probe spread 0.20000 exceeds tolerance 0.02000 after 3 batch(es) of 3 samples")
}

func TestBatchSampler_Validate(t *testing.T) {
	r := newRig(0)
	r.active = 0
	s := newTestSampler(r)

	for _, opt := range []SampleOptions{
		{Samples: 0, MaxCount: 3},
		{Samples: 4, MaxCount: 3},
		{Samples: 3, MaxCount: 3, Tolerance: -1},
		{Samples: 3, MaxCount: 3, Tolerance: math.NaN()},
		{Samples: 3, MaxCount: 3, Tolerance: math.Inf(1)},
		{Samples: 3, MaxCount: 3, TrimCount: -1},
	} {
		_, err := s.Sample(opt)
		assert.ErrorIs(t, err, ErrInvalidOptions, "%+v", opt)
	}
	assert.Equal(t, 0, r.probes[0], "validated before probing")
}

func TestBatchSampler_ProbeFault(t *testing.T) {
	r := newRig(0)
	r.active = 0
	r.preTriggered[0] = 10
	r.triggers[0] = []float64{1}

	_, err := newTestSampler(r).Sample(SampleOptions{Samples: 2, MaxCount: 4})
	var rerr *RecoveryError
	assert.True(t, errors.As(err, &rerr))
}
