package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"

	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Engine error codes
const (
	// Chain RPC
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumSubscribeFailed  Code = "ETHEREUM_SUBSCRIBE_FAILED"
	CodeEthereumRPCError         Code = "ETHEREUM_RPC_ERROR"
	CodeUnknownChain             Code = "UNKNOWN_CHAIN"
	CodeGasPriceUnavailable      Code = "GAS_PRICE_UNAVAILABLE"

	// WebSocket
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"

	// Market data
	CodeStaleData        Code = "STALE_DATA"
	CodeInvalidSnapshot  Code = "INVALID_SNAPSHOT"
	CodeQuoteFailed      Code = "QUOTE_FAILED"
	CodePriceUnavailable Code = "PRICE_UNAVAILABLE"

	// Detection
	CodeInsufficientConfidence Code = "INSUFFICIENT_CONFIDENCE"
	CodeInvalidPath            Code = "INVALID_PATH"
	CodeBridgeQuoteFailed      Code = "BRIDGE_QUOTE_FAILED"

	// Registry (claim conflicts)
	CodeOpportunityNotFound       Code = "OPPORTUNITY_NOT_FOUND"
	CodeOpportunityAlreadyClaimed Code = "OPPORTUNITY_ALREADY_CLAIMED"
	CodeOpportunityExpired        Code = "OPPORTUNITY_EXPIRED"
	CodeOpportunityNotClaimed     Code = "OPPORTUNITY_NOT_CLAIMED"

	// Execution
	CodeExecutorBusy            Code = "EXECUTOR_BUSY"
	CodeLaneBusy                Code = "LANE_BUSY"
	CodeSlippageExceeded        Code = "SLIPPAGE_EXCEEDED"
	CodeSubmissionFailed        Code = "SUBMISSION_FAILED"
	CodeExecutionTimeout        Code = "EXECUTION_TIMEOUT"
	CodeExecutionNotFound       Code = "EXECUTION_NOT_FOUND"
	CodeExecutionNotCancellable Code = "EXECUTION_NOT_CANCELLABLE"

	// Ledger
	CodeLedgerTerminalEntry Code = "LEDGER_TERMINAL_ENTRY"
	CodeStorageError        Code = "STORAGE_ERROR"

	// Circuit breaker
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"
	CodeCircuitHalfOpen Code = "CIRCUIT_HALF_OPEN"
)
