package ingestion

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrSummaryRepositoryRequired is returned when a summary repository is not provided.
	ErrSummaryRepositoryRequired = errors.New("summary repository required")

	// ErrIndexerRequired is returned when an indexer is not provided.
	ErrIndexerRequired = errors.New("indexer required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrUnsupportedFormat is returned when no parser accepts the file's extension.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrFileTooLarge is returned when an upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrEmptyFile is returned for an upload with no content.
	ErrEmptyFile = errors.New("file is empty")

	// ErrTooManyFailures is returned when the circuit breaker trips.
	ErrTooManyFailures = errors.New("too many summarization failures")

	// ErrCredentialsRejected is returned when the provider refused the API key.
	ErrCredentialsRejected = errors.New("provider rejected credentials")

	// ErrPipelineClosed is returned by Submit after Release.
	ErrPipelineClosed = errors.New("pipeline closed")
)
