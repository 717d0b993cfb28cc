package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	id "linkhub/pkg/domain"
)

func TestReconnectPolicy_DelayLadder(t *testing.T) {
	p := ReconnectPolicy{
		Initial:     2 * time.Second,
		Max:         time.Minute,
		Multiplier:  2,
		GiveUpAfter: 10,
	}

	require.Equal(t, 2*time.Second, p.Delay(1))
	require.Equal(t, 4*time.Second, p.Delay(2))
	require.Equal(t, 8*time.Second, p.Delay(3))

	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := p.Delay(attempt)
		require.GreaterOrEqual(t, d, prev, "delay must be non-decreasing at attempt %d", attempt)
		require.LessOrEqual(t, d, p.Max)
		prev = d
	}
	require.Equal(t, p.Max, p.Delay(20))
}

func TestReconnectPolicy_JitterIsAdditiveAndBounded(t *testing.T) {
	p := DefaultReconnectPolicy()
	for i := 0; i < 100; i++ {
		base := p.Delay(3)
		jittered := p.JitteredDelay(3)
		require.GreaterOrEqual(t, jittered, base)
		require.LessOrEqual(t, jittered, base+base/5)
	}
}

func TestReconnectPolicy_JitterNeverExceedsCap(t *testing.T) {
	p := DefaultReconnectPolicy()
	// Deep in the ladder the base delay sits at the cap; jitter must not
	// push past it.
	require.Equal(t, p.Max, p.Delay(20))
	for i := 0; i < 100; i++ {
		require.LessOrEqual(t, p.JitteredDelay(20), p.Max)
	}
}

func TestReconnectPolicy_Exhausted(t *testing.T) {
	p := ReconnectPolicy{GiveUpAfter: 3}
	require.False(t, p.Exhausted(2))
	require.True(t, p.Exhausted(3))
	require.True(t, p.Exhausted(4))

	unbounded := ReconnectPolicy{GiveUpAfter: 0}
	require.False(t, unbounded.Exhausted(1000))
}

func TestPairingChallenge_Supersedes(t *testing.T) {
	now := time.Now()
	first := PairingChallenge{TenantID: id.TenantID("t1"), Seq: 1, IssuedAt: now, ExpiresAt: now.Add(20 * time.Second)}
	second := PairingChallenge{TenantID: id.TenantID("t1"), Seq: 2, IssuedAt: now.Add(20 * time.Second), ExpiresAt: now.Add(40 * time.Second)}

	require.True(t, second.Supersedes(first))
	require.False(t, first.Supersedes(second))
	require.False(t, first.Supersedes(first))
}

func TestPairingChallenge_Expired(t *testing.T) {
	now := time.Now()
	c := PairingChallenge{IssuedAt: now, ExpiresAt: now.Add(20 * time.Second)}

	require.False(t, c.Expired(now))
	require.False(t, c.Expired(now.Add(19*time.Second)))
	require.True(t, c.Expired(now.Add(20*time.Second)))
}

func TestSessionState_Terminal(t *testing.T) {
	require.True(t, StateDisconnected.Terminal())
	require.True(t, StateFailed.Terminal())
	require.False(t, StateConnected.Terminal())
	require.False(t, StateReconnecting.Terminal())
	require.False(t, StatePairingPending.Terminal())
}

func TestStatusSnapshot_Connected(t *testing.T) {
	require.True(t, StatusSnapshot{State: StateConnected}.Connected())
	require.False(t, StatusSnapshot{State: StateReconnecting}.Connected())
}
