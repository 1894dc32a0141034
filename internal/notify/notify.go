// Package notify keeps the transient messages (toasts) shown on top of a view.
package notify

import (
	"sync"
	"time"
)

const DefaultTTL = 4500 * time.Millisecond

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

type Toast struct {
	ID    int
	Text  string
	Level Level
}

// Timer is the part of *time.Timer the center needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

type Option func(*Center)

func WithAfterFunc(af AfterFunc) Option {
	return func(c *Center) { c.after = af }
}

// Center holds visible toasts in insertion order. onChange runs after every
// change, outside the center's lock.
type Center struct {
	mu       sync.Mutex
	ttl      time.Duration
	onChange func()
	after    AfterFunc
	seq      int
	toasts   []Toast
	timers   map[int]Timer
}

func NewCenter(ttl time.Duration, onChange func(), opts ...Option) *Center {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if onChange == nil {
		onChange = func() {}
	}
	c := &Center{
		ttl:      ttl,
		onChange: onChange,
		after:    func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
		timers:   map[int]Timer{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Center) Show(text string) int  { return c.add(text, LevelInfo) }
func (c *Center) Error(text string) int { return c.add(text, LevelError) }

func (c *Center) add(text string, lvl Level) int {
	c.mu.Lock()
	c.seq++
	id := c.seq
	c.toasts = append(c.toasts, Toast{ID: id, Text: text, Level: lvl})
	c.timers[id] = c.after(c.ttl, func() { c.Dismiss(id) })
	c.mu.Unlock()

	c.onChange()
	return id
}

// Dismiss removes a toast early. It reports whether the toast was still visible.
func (c *Center) Dismiss(id int) bool {
	c.mu.Lock()
	idx := -1
	for i, t := range c.toasts {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return false
	}
	c.toasts = append(c.toasts[:idx], c.toasts[idx+1:]...)
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
	c.mu.Unlock()

	c.onChange()
	return true
}

func (c *Center) Active() []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Toast, len(c.toasts))
	copy(out, c.toasts)
	return out
}

// Close stops pending dismissal timers.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}
