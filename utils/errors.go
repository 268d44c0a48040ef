package utils

import "errors"

// RunAndWrapOnError runs fn and joins its error with err, if any.
func RunAndWrapOnError(fn func() error, err error) error {
	if fn == nil {
		return err
	}
	if fnErr := fn(); fnErr != nil {
		return errors.Join(err, fnErr)
	}
	return err
}
