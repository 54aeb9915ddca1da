package work

import (
	"time"

	"go.uber.org/zap"
)

// OnErrorFunc is a callback type for errors reported by background
// goroutines.
type OnErrorFunc interface{ OnError(error) }

// OnError delivers errors from background goroutines either to a callback or
// to a buffered channel.
type OnError struct {
	C        chan error
	Callback OnErrorFunc
}

// NewOnError creates an OnError channel with a channel size and callback
// function.
func NewOnError(size int, cb OnErrorFunc) *OnError {
	return &OnError{
		C:        make(chan error, size),
		Callback: cb,
	}
}

// Next waits and returns the next element from the channel.
func (c *OnError) Next() error {
	return <-c.C
}

func (c *OnError) receive(err error, log *zap.Logger) {
	if c.Callback != nil {
		c.Callback.OnError(err)
		return
	}
	select {
	case c.C <- err:
	default:
		log.Warn("OnError channel full, discarding error", zap.Error(err))
	}
}

func (c *OnError) close() {
	close(c.C)
}

// OnDifficultyFunc is a callback type for network difficulty updates.
type OnDifficultyFunc interface{ OnDifficulty(*ActiveDifficulty) }

// OnDifficulty delivers network difficulty updates either to a callback or to
// a buffered channel.
type OnDifficulty struct {
	C        chan *ActiveDifficulty
	Callback OnDifficultyFunc
}

// NewOnDifficulty creates an OnDifficulty channel with a channel size and
// callback function.
func NewOnDifficulty(size int, cb OnDifficultyFunc) *OnDifficulty {
	return &OnDifficulty{
		C:        make(chan *ActiveDifficulty, size),
		Callback: cb,
	}
}

// Next waits and returns the next element from the channel.
func (c *OnDifficulty) Next() *ActiveDifficulty {
	return <-c.C
}

// NextWithTimeout waits and returns the next element from the channel, timeout
// in millisecond. It returns nil on timeout.
func (c *OnDifficulty) NextWithTimeout(timeout int32) *ActiveDifficulty {
	if timeout == 0 {
		return <-c.C
	}
	select {
	case d := <-c.C:
		return d
	case <-time.After(time.Duration(timeout) * time.Millisecond):
		return nil
	}
}

func (c *OnDifficulty) receive(d *ActiveDifficulty) {
	if c.Callback != nil {
		c.Callback.OnDifficulty(d)
		return
	}
	select {
	case c.C <- d:
	default:
	}
}

func (c *OnDifficulty) close() {
	close(c.C)
}
