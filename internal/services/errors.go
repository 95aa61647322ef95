package services

import (
	"errors"
	"fmt"
)

var (
	ErrJoinRequestNotFound = errors.New("join request not found")
	ErrRoomNotFound        = errors.New("room not found")
	ErrInvalidRoomName     = errors.New("room name must not be empty")
	ErrInvalidIdentity     = errors.New("identity has no uid")
	ErrNotAdmin            = errors.New("only room admins can do this")
	ErrNotMember           = errors.New("you are not a member of this room")
	ErrAlreadyMember       = errors.New("already a member of this room")
	ErrRequestPending      = errors.New("join request already pending")
	ErrEmptyMessage        = errors.New("message text must not be empty")
	ErrUploadFailed        = errors.New("file upload failed")
	ErrWriteFailure        = errors.New("document store write failed")

	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
)

// WriteError оборачивает отказ хранилища при записи. errors.Is(err,
// ErrWriteFailure) истинно для любого WriteError.
type WriteError struct {
	Op   string
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWriteFailure }

func writeErr(op, path string, err error) error {
	return &WriteError{Op: op, Path: path, Err: err}
}
