package messaging

type EventListener interface {
	OnMessagesGathered(count int)
	OnMessagesSent(count int)
	OnError(path string)
}

type SelectiveListener struct {
	OnMessagesGatheredCb func(count int)
	OnMessagesSentCb     func(count int)
	OnErrorCb            func(path string)
}

func (l *SelectiveListener) OnMessagesGathered(count int) {
	if l.OnMessagesGatheredCb != nil {
		l.OnMessagesGatheredCb(count)
	}
}

func (l *SelectiveListener) OnMessagesSent(count int) {
	if l.OnMessagesSentCb != nil {
		l.OnMessagesSentCb(count)
	}
}

func (l *SelectiveListener) OnError(path string) {
	if l.OnErrorCb != nil {
		l.OnErrorCb(path)
	}
}
