package entities

import "errors"

// PermanentError marks a message handling failure that retrying cannot fix.
// The router moves such messages to the poison queue.
type PermanentError struct {
	Err error
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return PermanentError{Err: err}
}

func (e PermanentError) Error() string {
	return e.Err.Error()
}

func (e PermanentError) Unwrap() error {
	return e.Err
}

func (e PermanentError) IsPermanent() bool {
	return true
}

func IsPermanent(err error) bool {
	var permanent interface{ IsPermanent() bool }
	return errors.As(err, &permanent) && permanent.IsPermanent()
}
