package core

import "errors"

var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidElement indicates a ContentElement failed validation.
	ErrInvalidElement = errors.New("invalid content element")

	// ErrInvalidMessage indicates a Message failed validation.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrInvalidStatus indicates an unknown DocumentStatus value.
	ErrInvalidStatus = errors.New("invalid document status")

	// ErrInvalidStage indicates an unknown Stage value.
	ErrInvalidStage = errors.New("invalid stage")

	// ErrInvalidElementType indicates an unknown ElementType value.
	ErrInvalidElementType = errors.New("invalid element type")

	// ErrInvalidProgress indicates a progress value outside [0,100].
	ErrInvalidProgress = errors.New("progress must be between 0 and 100")

	// ErrEmptyContent indicates the element or message carries no payload.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyID indicates a required identifier is missing.
	ErrEmptyID = errors.New("id cannot be empty")
)
