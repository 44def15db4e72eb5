// Copyright (c) 2025 Justin Cranford

package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ovkpocClock "ovkpoc/internal/ovkpoc/clock"
)

func TestSystemClockAdvances(t *testing.T) {
	t.Parallel()

	c := ovkpocClock.System{}
	first := c.Now()
	time.Sleep(time.Millisecond)
	second := c.Now()

	require.True(t, second.After(first) || second.Equal(first))
}

func TestVirtualClockOnlyAdvancesOnDemand(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	v := ovkpocClock.NewVirtual(start)

	require.True(t, v.Now().Equal(start))
	require.True(t, v.Now().Equal(start))

	v.Advance(3 * time.Minute)
	require.True(t, v.Now().Equal(start.Add(3*time.Minute)))
}
