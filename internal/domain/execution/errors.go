package execution

import "errors"

var (
	// ErrUnsupportedLanguage is returned when a language is absent from the catalog.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrContainerCreation is returned when a run environment cannot be provisioned.
	ErrContainerCreation = errors.New("container creation failed")
	// ErrContainerStart is returned when a provisioned environment cannot be started.
	ErrContainerStart = errors.New("container start failed")
	// ErrExecutionTimeout is returned when the exec wait exceeds the run timeout.
	ErrExecutionTimeout = errors.New("execution timed out")
	// ErrFileOperation is returned when workspace files cannot be written.
	ErrFileOperation = errors.New("file operation failed")
	// ErrResultNotAvailable is returned for unknown, in-flight or expired task ids.
	ErrResultNotAvailable = errors.New("Execution result not available yet")
	// ErrInvalidCode is returned when submitted code is not valid base64.
	ErrInvalidCode = errors.New("invalid code encoding")
)

// Business error codes exposed to HTTP clients.
const (
	CodeExecutionError     = 305
	CodeUnsupportedLang    = 306
	CodeContainerCreation  = 307
	CodeContainerStart     = 308
	CodeExecutionTimeout   = 310
	CodeFileOperation      = 311
	CodeValidationError    = 400
	CodeResultNotAvailable = 404
)

// BusinessCode classifies err into a business error code.
func BusinessCode(err error) int {
	switch {
	case errors.Is(err, ErrUnsupportedLanguage):
		return CodeUnsupportedLang
	case errors.Is(err, ErrContainerCreation):
		return CodeContainerCreation
	case errors.Is(err, ErrContainerStart):
		return CodeContainerStart
	case errors.Is(err, ErrExecutionTimeout):
		return CodeExecutionTimeout
	case errors.Is(err, ErrFileOperation):
		return CodeFileOperation
	case errors.Is(err, ErrInvalidCode):
		return CodeValidationError
	case errors.Is(err, ErrResultNotAvailable):
		return CodeResultNotAvailable
	default:
		return CodeExecutionError
	}
}
