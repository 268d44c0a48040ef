package blockchain

import "time"

// EventListener observes the chain. Callbacks run synchronously on the caller's goroutine and must
// not call back into the Blockchain.
type EventListener interface {
	OnRead(method string)
	OnStored(number uint64, txs int, took time.Duration)
	OnL1Accepted(number uint64)
}

type SelectiveListener struct {
	OnReadCb       func(method string)
	OnStoredCb     func(number uint64, txs int, took time.Duration)
	OnL1AcceptedCb func(number uint64)
}

func (l *SelectiveListener) OnRead(method string) {
	if l.OnReadCb != nil {
		l.OnReadCb(method)
	}
}

func (l *SelectiveListener) OnStored(number uint64, txs int, took time.Duration) {
	if l.OnStoredCb != nil {
		l.OnStoredCb(number, txs, took)
	}
}

func (l *SelectiveListener) OnL1Accepted(number uint64) {
	if l.OnL1AcceptedCb != nil {
		l.OnL1AcceptedCb(number)
	}
}
