package authority

import "errors"

var (
	ErrInvalidCredentials = errors.New("username or password is incorrect")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("absent not found")
	ErrForbidden          = errors.New("record belongs to another user")
	ErrDuplicateAbsent    = errors.New("absent already exists")
)
