package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	CodeConfigurationError: "Configuration error",

	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	CodeEthereumConnectionFailed: "Failed to connect to chain node",
	CodeEthereumSubscribeFailed:  "Failed to subscribe to chain events",
	CodeEthereumRPCError:         "Chain RPC call failed",
	CodeUnknownChain:             "Chain is not configured",
	CodeGasPriceUnavailable:      "Gas price unknown",

	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketClosed:          "WebSocket connection closed",

	CodeStaleData:        "Market snapshot is stale or missing",
	CodeInvalidSnapshot:  "Invalid market snapshot",
	CodeQuoteFailed:      "Failed to fetch DEX quote",
	CodePriceUnavailable: "USD price unavailable",

	CodeInsufficientConfidence: "Confidence below minimum",
	CodeInvalidPath:            "Invalid arbitrage path",
	CodeBridgeQuoteFailed:      "Failed to fetch bridge quote",

	CodeOpportunityNotFound:       "Opportunity not found",
	CodeOpportunityAlreadyClaimed: "Opportunity already claimed",
	CodeOpportunityExpired:        "Opportunity expired",
	CodeOpportunityNotClaimed:     "Opportunity is not claimed",

	CodeExecutorBusy:            "Executor at capacity",
	CodeLaneBusy:                "Execution lane busy",
	CodeSlippageExceeded:        "Recomputed profit below slippage tolerance",
	CodeSubmissionFailed:        "Submission service error",
	CodeExecutionTimeout:        "No outcome reported within bound",
	CodeExecutionNotFound:       "Execution not found",
	CodeExecutionNotCancellable: "Execution already submitted",

	CodeLedgerTerminalEntry: "Execution is terminal and cannot change",
	CodeStorageError:        "Storage error",

	CodeCircuitOpen:     "Circuit breaker is open",
	CodeCircuitHalfOpen: "Circuit breaker is half-open",
}
