package session

import (
	"sync"
	"time"
)

// heartbeat calls beat on a fixed interval until stopped.
type heartbeat struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func startHeartbeat(every time.Duration, beat func()) *heartbeat {
	h := &heartbeat{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				// Stop may race the tick; it wins.
				select {
				case <-h.stop:
					return
				default:
				}
				beat()
			}
		}
	}()
	return h
}

// Stop returns once no further beat can run.
func (h *heartbeat) Stop() {
	h.once.Do(func() { close(h.stop) })
	<-h.done
}
