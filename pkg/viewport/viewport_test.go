package viewport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOnScroll_Threshold(t *testing.T) {
	tests := []struct {
		name      string
		scrollTop float64
		want      bool
	}{
		{"exactly at bottom", 1500, true},
		{"within threshold", 1420, true},
		{"on the threshold", 1400, true},
		{"just above threshold", 1399, false},
		{"top of list", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(DefaultThreshold)
			require.Equal(t, tt.want, v.OnScroll(tt.scrollTop, 500, 2000))
			require.Equal(t, tt.want, v.IsAtBottom())
		})
	}
}

func TestOnPollAppend_AtBottomFollows(t *testing.T) {
	v := New(0)
	require.True(t, v.IsAtBottom())

	d := v.OnPollAppend(2)
	require.Equal(t, ActionScrollToNewest, d.Action)
	require.Zero(t, v.Unseen())
}

func TestOnPollAppend_ScrolledUpHoldsPosition(t *testing.T) {
	v := New(DefaultThreshold)
	v.OnScroll(0, 500, 2000)

	d := v.OnPollAppend(1)
	require.Equal(t, Decision{Action: ActionShowAffordance, NewMessages: 1}, d)

	d = v.OnPollAppend(2)
	require.Equal(t, Decision{Action: ActionShowAffordance, NewMessages: 3}, d)
	require.False(t, v.IsAtBottom())

	require.Equal(t, Decision{}, v.OnPollAppend(0))
	require.Equal(t, 3, v.Unseen())

	v.OnScroll(1500, 500, 2000)
	require.Zero(t, v.Unseen())
}

func TestOnLocalSend_AlwaysScrolls(t *testing.T) {
	v := New(DefaultThreshold)
	v.OnScroll(0, 500, 2000)
	v.OnPollAppend(4)

	d := v.OnLocalSend()
	require.Equal(t, ActionScrollToNewest, d.Action)
	require.True(t, v.IsAtBottom())
	require.Zero(t, v.Unseen())
}

func TestShouldMarkRead(t *testing.T) {
	require.True(t, ShouldMarkRead(TriggerForeground))
	require.False(t, ShouldMarkRead(TriggerBackground))
}
