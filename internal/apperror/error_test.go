package apperror_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/fd1az/arbitrage-engine/internal/apperror"
)

func TestIs_ComparesByCode(t *testing.T) {
	sentinel := apperror.Sentinel(apperror.CodeOpportunityExpired)
	err := fmt.Errorf("claim: %w", apperror.New(apperror.CodeOpportunityExpired, apperror.WithContext("fp")))

	if !errors.Is(err, sentinel) {
		t.Fatal("expected wrapped error to match sentinel by code")
	}
	if errors.Is(err, apperror.Sentinel(apperror.CodeOpportunityNotFound)) {
		t.Fatal("different codes must not match")
	}
}

func TestDefaultStatusCodes(t *testing.T) {
	tests := []struct {
		code apperror.Code
		want int
	}{
		{apperror.CodeOpportunityNotFound, http.StatusNotFound},
		{apperror.CodeOpportunityAlreadyClaimed, http.StatusConflict},
		{apperror.CodeOpportunityExpired, http.StatusGone},
		{apperror.CodeExecutorBusy, http.StatusTooManyRequests},
		{apperror.CodeLedgerTerminalEntry, http.StatusConflict},
		{apperror.CodeInvalidInput, http.StatusBadRequest},
		{apperror.CodeExecutionTimeout, http.StatusGatewayTimeout},
		{apperror.CodeStorageError, http.StatusInternalServerError},
		{apperror.CodeRequiredField, http.StatusBadRequest},
		{apperror.CodeInvalidPath, http.StatusBadRequest},
		{apperror.CodeEthereumConnectionFailed, http.StatusServiceUnavailable},
		{apperror.CodeExecutionNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := apperror.New(tt.code).StatusCode; got != tt.want {
				t.Errorf("status for %s = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestWrap_KeepsAppError(t *testing.T) {
	orig := apperror.New(apperror.CodeSubmissionFailed)
	if got := apperror.Wrap(orig, apperror.CodeInternalError, "submit"); got != orig {
		t.Error("Wrap should return an existing AppError unchanged")
	}
	if apperror.GetCode(errors.New("plain")) != apperror.CodeUnknownError {
		t.Error("plain errors map to UNKNOWN_ERROR")
	}
	if apperror.Wrap(nil, apperror.CodeInternalError, "") != nil {
		t.Error("Wrap(nil) must be nil")
	}
}
