package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (m *manualTimer) Stop() bool { m.stopped = true; return true }

type clock struct{ timers []*manualTimer }

func (c *clock) after(d time.Duration, f func()) Timer {
	t := &manualTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func TestShowSchedulesDismissal(t *testing.T) {
	clk := &clock{}
	changes := 0
	c := NewCenter(0, func() { changes++ }, WithAfterFunc(clk.after))

	a := c.Show("Signed in")
	b := c.Error("Failed to send")
	assert.Less(t, a, b)
	assert.Equal(t, 2, changes)

	active := c.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "Signed in", active[0].Text)
	assert.Equal(t, LevelError, active[1].Level)

	require.Len(t, clk.timers, 2)
	assert.Equal(t, DefaultTTL, clk.timers[0].d)

	clk.timers[0].f()
	active = c.Active()
	require.Len(t, active, 1)
	assert.Equal(t, b, active[0].ID)
	assert.Equal(t, 3, changes)
}

func TestDismissEarly(t *testing.T) {
	clk := &clock{}
	c := NewCenter(time.Second, nil, WithAfterFunc(clk.after))
	id := c.Show("Post created")

	assert.True(t, c.Dismiss(id))
	assert.True(t, clk.timers[0].stopped)
	assert.False(t, c.Dismiss(id))

	// the late timer firing is a no-op
	clk.timers[0].f()
	assert.Empty(t, c.Active())
}

func TestRealTimerExpires(t *testing.T) {
	c := NewCenter(10*time.Millisecond, nil)
	c.Show("hello")
	assert.Eventually(t, func() bool { return len(c.Active()) == 0 }, time.Second, 5*time.Millisecond)
}
