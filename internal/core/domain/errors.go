package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown connector or storage backend.
	ErrUnsupportedType = errors.New("unsupported type")

	// Record Errors.

	// ErrValidation indicates a record failed required-field checks.
	// Reported per record; never aborts a batch.
	ErrValidation = errors.New("validation failed")

	// Storage Errors.

	// ErrTransientStore indicates a read or write against the object store
	// failed (network, auth, rate limit). The record is marked failed and
	// the batch continues.
	ErrTransientStore = errors.New("object store unavailable")

	// ErrImageUpload indicates an image could not be copied to blob storage.
	// The record is still written without the uploaded image URL.
	ErrImageUpload = errors.New("image upload failed")

	// ErrBackup indicates a snapshot or version backup could not be written.
	// Logged as a warning; never changes a batch outcome.
	ErrBackup = errors.New("backup failed")

	// ErrConfiguration indicates missing credentials or identifiers.
	// Fatal at construction time of the collaborator that needs them.
	ErrConfiguration = errors.New("configuration error")

	// Connector Errors.

	// ErrConnectorClosed indicates the connector has been closed.
	ErrConnectorClosed = errors.New("connector closed")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)
