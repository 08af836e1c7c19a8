package apperrors

import (
	"context"
	"errors"
)

// Process exit codes.
const (
	ExitOK               = 0
	ExitFailure          = 1
	ExitValidation       = 2
	ExitProtocol         = 3
	ExitDeploymentFailed = 4
	ExitCancelled        = 130
)

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrValidation):
		return ExitValidation
	case errors.Is(err, ErrDeploymentFailed):
		return ExitDeploymentFailed
	case errors.Is(err, ErrProtocol):
		return ExitProtocol
	case errors.Is(err, context.Canceled):
		return ExitCancelled
	default:
		return ExitFailure
	}
}
