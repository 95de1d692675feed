package conversation

import "github.com/pkg/errors"

var (
	// ErrInvalidPosition is returned for a path position outside the selected path.
	ErrInvalidPosition = errors.New("invalid message position")
	// ErrInvalidVersion is returned when selecting a branch that does not exist.
	ErrInvalidVersion = errors.New("invalid message version")
	// ErrRootImmutable is returned when deleting or regenerating the system message.
	ErrRootImmutable = errors.New("the system message cannot be changed this way")
	ErrInvalidRole   = errors.New("invalid message role")
	ErrUnknownNode   = errors.New("unknown node")
	// ErrInvalidDocument is returned by Unmarshal for structurally broken documents.
	ErrInvalidDocument = errors.New("invalid conversation document")
)
