package apperr

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicateID = errors.New("duplicate id")
	ErrMalformed   = errors.New("malformed")
	ErrStorage     = errors.New("storage write failure")
	ErrTimeout     = errors.New("reasoner timeout")
)
