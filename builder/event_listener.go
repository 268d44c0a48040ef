package builder

import (
	"time"

	"github.com/NethermindEth/katana/core"
)

type EventListener interface {
	OnBlockFinalised(header *core.Header, took time.Duration)
	OnTransactionsExecuted(included, dropped int)
}

type SelectiveListener struct {
	OnBlockFinalisedCb       func(header *core.Header, took time.Duration)
	OnTransactionsExecutedCb func(included, dropped int)
}

func (l *SelectiveListener) OnBlockFinalised(header *core.Header, took time.Duration) {
	if l.OnBlockFinalisedCb != nil {
		l.OnBlockFinalisedCb(header, took)
	}
}

func (l *SelectiveListener) OnTransactionsExecuted(included, dropped int) {
	if l.OnTransactionsExecutedCb != nil {
		l.OnTransactionsExecutedCb(included, dropped)
	}
}
