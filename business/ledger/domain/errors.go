package domain

import "github.com/fd1az/arbitrage-engine/internal/apperror"

// Store errors. Compare with errors.Is.
var (
	ErrTerminal = apperror.Sentinel(apperror.CodeLedgerTerminalEntry)
	ErrNotFound = apperror.Sentinel(apperror.CodeExecutionNotFound)
)

// NotFound builds the error for a missing id.
func NotFound(id string) error {
	return apperror.NotFound(apperror.CodeExecutionNotFound, id)
}

// Terminal builds the error for a rejected overwrite of a final entry.
func Terminal(id string) error {
	return apperror.Conflict(apperror.CodeLedgerTerminalEntry, id)
}
