package docstore

import "errors"

var (
	ErrInvalidPath      = errors.New("invalid document path")
	ErrPathTooShallow   = errors.New("document path too shallow for write")
	ErrOverlappingPaths = errors.New("update paths overlap")
	ErrInvalidKey       = errors.New("invalid key in document value")
	ErrCrossDocument    = errors.New("update spans more than one document")
	ErrOutsideParent    = errors.New("update path outside of parent")
	ErrTxConflict       = errors.New("transaction aborted after repeated conflicts")
	ErrClosed           = errors.New("document store closed")
)
