package chat

import "errors"

var (
	// ErrValidation marks malformed or missing input. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrInternal marks persistence or extraction failures.
	ErrInternal = errors.New("internal error")
	// ErrDuplicateMemory is returned when a memory record already exists for a conversation.
	ErrDuplicateMemory = errors.New("memory already exists")
)
