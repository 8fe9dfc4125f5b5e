// SPDX-License-Identifier: MIT

package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimeoutsFor(t *testing.T) {
	tt := Timeouts{Short: 10 * time.Second, Medium: 2 * time.Minute, Long: 2 * time.Hour}

	require.Equal(t, tt.Long, tt.For(CommandDownloadStart))
	require.Equal(t, tt.Medium, tt.For(CommandSaveDialog))
	for _, cmd := range []string{CommandPing, CommandProbe, CommandThumbnail, CommandDownloadCancel, CommandVersion} {
		require.Equal(t, tt.Short, tt.For(cmd), "command %s", cmd)
	}
}

func TestTimeoutsWithDefaults(t *testing.T) {
	got := Timeouts{Short: 3 * time.Second}.withDefaults()
	require.Equal(t, 3*time.Second, got.Short)
	require.Equal(t, DefaultTimeouts().Medium, got.Medium)
	require.Equal(t, DefaultTimeouts().Long, got.Long)
}

func TestBackoffDelay(t *testing.T) {
	base := 500 * time.Millisecond
	max := 30 * time.Second

	require.Equal(t, 500*time.Millisecond, backoffDelay(base, max, 1))
	require.Equal(t, time.Second, backoffDelay(base, max, 2))
	require.Equal(t, 2*time.Second, backoffDelay(base, max, 3))
	require.Equal(t, 16*time.Second, backoffDelay(base, max, 6))
	require.Equal(t, max, backoffDelay(base, max, 7))
	require.Equal(t, max, backoffDelay(base, max, 50))
}

func TestStateTransitions(t *testing.T) {
	require.True(t, StateDisconnected.CanTransitionTo(StateConnecting))
	require.True(t, StateConnecting.CanTransitionTo(StateValidating))
	require.True(t, StateValidating.CanTransitionTo(StateConnected))
	require.True(t, StateConnected.CanTransitionTo(StateDisconnected))
	require.True(t, StateError.CanTransitionTo(StateConnecting))

	for _, s := range []State{StateDisconnected, StateConnecting, StateValidating, StateConnected} {
		require.True(t, s.CanTransitionTo(StateError), "state %s", s)
	}

	require.False(t, StateDisconnected.CanTransitionTo(StateConnected))
	require.False(t, StateConnecting.CanTransitionTo(StateConnected))
	require.False(t, StateConnected.CanTransitionTo(StateValidating))

	require.True(t, StateConnected.Usable())
	require.False(t, StateValidating.Usable())
	require.False(t, State("bogus").IsValid())
}
