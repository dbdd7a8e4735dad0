package zswitch

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoop(r *rig) *RecoveryLoop {
	return &RecoveryLoop{
		Motion:      r,
		Probe:       r,
		Request:     DefaultProbeRequest,
		Lift:        2,
		MaxAttempts: 4,
		ZSpeed:      10,
	}
}

func TestRecoveryLoop_Measure(t *testing.T) {
	for k := 0; k <= 6; k++ {
		r := newRig(0)
		r.active = 0
		r.triggers[0] = []float64{1.25}
		r.preTriggered[0] = k
		r.pos.Z = 3

		z, err := newTestLoop(r).Measure()
		if k < 4 {
			require.NoError(t, err, "k=%d", k)
			assert.Equal(t, 1.25, z)
			assert.Len(t, r.moves, k, "one lift per pre-triggered attempt")
			continue
		}

		var rerr *RecoveryError
		require.True(t, errors.As(err, &rerr), "k=%d", k)
		assert.Equal(t, 4, rerr.Attempts)
		assert.True(t, IsPreTriggered(rerr.Last))
		assert.Contains(t, err.Error(), "ALARM:4")
		assert.Equal(t, k-4, r.preTriggered[0], "exactly 4 attempts for k=%d", k)
		assert.Equal(t, 0, r.probes[0])
	}
}

func TestRecoveryLoop_Lift(t *testing.T) {
	r := newRig(0)
	r.active = 0
	r.triggers[0] = []float64{1}
	r.preTriggered[0] = 2
	r.pos.Z = 3

	loop := newTestLoop(r)
	loop.Pause = 150 * time.Millisecond
	_, err := loop.Measure()
	require.NoError(t, err)

	require.Len(t, r.moves, 2)
	assert.Equal(t, 5.0, r.moves[0].Z)
	assert.Equal(t, 7.0, r.moves[1].Z)
	assert.Equal(t, []string{"dwell 150ms", "dwell 150ms"}, r.events)
}

func TestRecoveryLoop_OtherFault(t *testing.T) {
	r := newRig(0)
	r.active = 0
	r.probeErr = &ProbeFault{Kind: FaultOther, Err: errors.New("switch not reached")}

	_, err := newTestLoop(r).Measure()
	assert.Equal(t, r.probeErr, err)
	assert.Empty(t, r.moves, "no recovery for other faults")
}
