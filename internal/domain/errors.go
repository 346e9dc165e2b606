package domain

import "errors"

var (
	// ErrNotFound signals a missing collection.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate collection.
	ErrAlreadyExists = errors.New("already exists")
	// ErrVectorDimMismatch signals a vector whose length does not match the collection dimension.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrExternalService signals that the vector index service is unreachable or rejected a request.
	ErrExternalService = errors.New("vector index service error")
	// ErrEmbeddingProvider signals an embedding provider failure.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrInference signals a generation engine failure.
	ErrInference = errors.New("inference error")
	// ErrInvalidState signals a pipeline operation called out of order.
	ErrInvalidState = errors.New("invalid pipeline state")
	// ErrInvalidConfig signals a fatal configuration problem at startup.
	ErrInvalidConfig = errors.New("invalid configuration")
)
