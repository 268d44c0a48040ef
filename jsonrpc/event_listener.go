package jsonrpc

import "time"

// EventListener observes the requests a Server serves. Callbacks run on the request goroutine.
type EventListener interface {
	OnNewRequest(method string)
	OnRequestHandled(method string, took time.Duration)
	OnRequestFailed(method string, err *Error)
}

type SelectiveListener struct {
	OnNewRequestCb     func(method string)
	OnRequestHandledCb func(method string, took time.Duration)
	OnRequestFailedCb  func(method string, err *Error)
}

func (l *SelectiveListener) OnNewRequest(method string) {
	if l.OnNewRequestCb != nil {
		l.OnNewRequestCb(method)
	}
}

func (l *SelectiveListener) OnRequestHandled(method string, took time.Duration) {
	if l.OnRequestHandledCb != nil {
		l.OnRequestHandledCb(method, took)
	}
}

func (l *SelectiveListener) OnRequestFailed(method string, err *Error) {
	if l.OnRequestFailedCb != nil {
		l.OnRequestFailedCb(method, err)
	}
}
