// Package service is the contract long running parts of the node implement.
package service

import "context"

// Service runs until ctx is cancelled or it fails. A nil return after cancellation is a clean
// shutdown.
type Service interface {
	Run(ctx context.Context) error
}

// Func adapts a function to Service.
type Func func(ctx context.Context) error

func (f Func) Run(ctx context.Context) error {
	return f(ctx)
}
