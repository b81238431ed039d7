package poller

import "time"

// Clock is the time source a Loop and its views read from. Tests swap in a
// clock whose ticks they fire by hand.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers ticks on C until Stop is called.
type Ticker struct {
	C        <-chan time.Time
	stopFunc func()
}

func (t *Ticker) Stop() { t.stopFunc() }

// NewTickerFunc builds a Ticker over an arbitrary channel.
func NewTickerFunc(c <-chan time.Time, stop func()) *Ticker {
	return &Ticker{C: c, stopFunc: stop}
}

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stopFunc: t.Stop}
}
