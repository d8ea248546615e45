package pipeline

import (
	"errors"
	"fmt"

	"gifforge/internal/source"
	"gifforge/internal/supervise"
)

// Category classifies a failed conversion for reporting and metrics.
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryLoading       Category = "loading"
	CategoryProcessing    Category = "processing"
	CategoryEncoding      Category = "encoding"
	CategoryWorkerTimeout Category = "worker_timeout"
	CategoryResource      Category = "resource"
)

// PipelineError carries the failure category and the stage the pipeline was
// in when the job died. Cancellation is not an error: a canceled job returns
// a Result with Canceled set instead.
type PipelineError struct {
	Category Category
	Stage    supervise.Stage
	Message  string
	Err      error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s/%s): %v", e.Message, e.Category, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s (%s/%s)", e.Message, e.Category, e.Stage)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func failure(category Category, stage supervise.Stage, message string, err error) *PipelineError {
	return &PipelineError{Category: category, Stage: stage, Message: message, Err: err}
}

// CategoryOf extracts the category from an error chain, defaulting to
// resource for anything that escaped classification.
func CategoryOf(err error) Category {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return CategoryResource
}

// validationFailure maps a source validation error onto the taxonomy: probe
// failures are loading problems (the decoder could not read the file), all
// other checks are request-versus-source validation.
func validationFailure(err error) *PipelineError {
	var ve *source.ValidationError
	if errors.As(err, &ve) && ve.Check == "metadata" {
		return failure(CategoryLoading, supervise.StageLoading, "source could not be read", err)
	}
	return failure(CategoryValidation, supervise.StageLoading, "source validation failed", err)
}
