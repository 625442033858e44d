package tutor

import (
	"errors"
	"fmt"
)

// ErrNoContent signals that topic routing found nothing for the query. The
// orchestrator turns it into a "no matching content" response instead of a
// server failure.
var ErrNoContent = errors.New("no matching content for query")

// EmbeddingServiceError wraps a failed embedding call. The embedding client
// already retried once with backoff before this surfaces.
type EmbeddingServiceError struct {
	Err error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service: %v", e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// IndexQueryError wraps a failed vector index query.
type IndexQueryError struct {
	Collection string
	Err        error
}

func (e *IndexQueryError) Error() string {
	return fmt.Sprintf("index query (%s): %v", e.Collection, e.Err)
}

func (e *IndexQueryError) Unwrap() error { return e.Err }

// GenerationError wraps a model call that failed, returned empty content or
// produced schema-invalid output.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation (%s): %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// InputShapeError marks caller-supplied data that violates a structural
// precondition. It is never retried and maps to a 4xx response.
type InputShapeError struct {
	Msg string
}

func (e *InputShapeError) Error() string { return e.Msg }
