package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestButtonEvents(t *testing.T) {
	tests := []struct {
		event   string
		signals int
	}{
		{ButtonEventTriple, 6},
		{ButtonEventDouble, 4},
		{ButtonEventSingle, 2},
		{ButtonEventDown, 1},
		{ButtonEventUp, 1},
	}
	for _, tc := range tests {
		t.Run(tc.event, func(t *testing.T) {
			signals, err := ButtonEvents("2", tc.event)
			require.NoError(t, err)
			require.Len(t, signals, tc.signals)
			for _, sig := range signals {
				assert.Equal(t, "2", sig.Button)
			}
		})
	}
}

func TestButtonEventsClickSequence(t *testing.T) {
	signals, err := ButtonEvents("1", ButtonEventDouble)
	require.NoError(t, err)

	// each click is a pressed/released pair with a running click counter
	assert.Equal(t, ButtonSignal{Button: "1", Click: 1, Sequence: 1, State: 1}, signals[0])
	assert.Equal(t, ButtonSignal{Button: "1", Click: 1, Sequence: 2, State: 0}, signals[1])
	assert.Equal(t, ButtonSignal{Button: "1", Click: 2, Sequence: 1, State: 1}, signals[2])
	assert.Equal(t, ButtonSignal{Button: "1", Click: 2, Sequence: 2, State: 0}, signals[3])
}

func TestButtonEventsStates(t *testing.T) {
	down, err := ButtonEvents("1", ButtonEventDown)
	require.NoError(t, err)
	assert.Equal(t, 1, down[0].State)

	up, err := ButtonEvents("1", ButtonEventUp)
	require.NoError(t, err)
	assert.Equal(t, 0, up[0].State)
}

func TestButtonEventsUnknown(t *testing.T) {
	_, err := ButtonEvents("1", "hold")
	assert.Error(t, err)
}
