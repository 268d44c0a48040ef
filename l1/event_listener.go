package l1

import "time"

type EventListener interface {
	OnCall(method string, took time.Duration)
}

type SelectiveListener struct {
	OnCallCb func(method string, took time.Duration)
}

func (l SelectiveListener) OnCall(method string, took time.Duration) {
	if l.OnCallCb != nil {
		l.OnCallCb(method, took)
	}
}
