package services

// runGuard is the global mutual-exclusion lock around a run. TryAcquire
// never blocks: a trigger that finds the lock held is dropped, not
// queued.
type runGuard struct {
	ch chan struct{}
}

func newRunGuard() *runGuard {
	return &runGuard{ch: make(chan struct{}, 1)}
}

func (g *runGuard) TryAcquire() bool {
	select {
	case g.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (g *runGuard) Release() {
	<-g.ch
}
