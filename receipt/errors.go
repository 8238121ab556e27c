package receipt

import "errors"

var (
	ErrNotFound      = errors.New("receipt: not found")
	ErrInvalidDigest = errors.New("receipt: invalid digest")
	ErrImmutable     = errors.New("receipt: immutable receipt mismatch")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsImmutable(err error) bool { return errors.Is(err, ErrImmutable) }
