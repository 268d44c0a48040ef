package mempool

type EventListener interface {
	OnAdded(size int)
	OnTaken(taken, size int)
	OnRejected(reason error)
}

type SelectiveListener struct {
	OnAddedCb    func(size int)
	OnTakenCb    func(taken, size int)
	OnRejectedCb func(reason error)
}

func (l *SelectiveListener) OnAdded(size int) {
	if l.OnAddedCb != nil {
		l.OnAddedCb(size)
	}
}

func (l *SelectiveListener) OnTaken(taken, size int) {
	if l.OnTakenCb != nil {
		l.OnTakenCb(taken, size)
	}
}

func (l *SelectiveListener) OnRejected(reason error) {
	if l.OnRejectedCb != nil {
		l.OnRejectedCb(reason)
	}
}
