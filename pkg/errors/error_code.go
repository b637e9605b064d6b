package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Data errors (100-199). Always fatal to a run: the bar loop never starts.
	ErrCodeInsufficientBars     ErrorCode = 100
	ErrCodeUnsortedTimestamps   ErrorCode = 101
	ErrCodeDuplicateTimestamp   ErrorCode = 102
	ErrCodeInvalidOHLC          ErrorCode = 103
	ErrCodeMissingColumn        ErrorCode = 104
	ErrCodeDataParseFailed      ErrorCode = 105
	ErrCodeEmptySeries          ErrorCode = 106
	ErrCodeSymbolMismatch       ErrorCode = 107
	ErrCodeNegativeVolume       ErrorCode = 108

	// Bias violations (200-299). Always fatal, never downgraded.
	ErrCodeLookaheadRead      ErrorCode = 200
	ErrCodeSymbolNotYetListed ErrorCode = 201

	// Fill errors (300-399). Recovered locally: the signal is skipped.
	ErrCodeNonPositiveQuantity  ErrorCode = 300
	ErrCodeInsufficientCapital  ErrorCode = 301
	ErrCodeInvalidSignal        ErrorCode = 302
	ErrCodeSignalAlreadyUsed    ErrorCode = 303

	// Cost model errors (400-499). Recovered with the default liquidity tier.
	ErrCodeUnknownLiquidityTier ErrorCode = 400
	ErrCodeInvalidCostInput     ErrorCode = 401

	// Config errors (500-599). Recovered with the default symbol configuration.
	ErrCodeInvalidConfiguration ErrorCode = 500
	ErrCodeUnknownSymbolConfig  ErrorCode = 501
	ErrCodeInvalidMultiplier    ErrorCode = 502
	ErrCodeInvalidPeriod        ErrorCode = 503
	ErrCodeInvalidParameter     ErrorCode = 504
	ErrCodeInvalidType          ErrorCode = 505
	ErrCodeMissingParameter     ErrorCode = 506

	// Validation layer errors (600-699)
	ErrCodeInvalidSplit        ErrorCode = 600
	ErrCodeSampleTooSmall      ErrorCode = 601
	ErrCodeNoTradesToPermute   ErrorCode = 602
	ErrCodeValidationRunFailed ErrorCode = 603

	// Engine errors (700-799)
	ErrCodeEngineNotPrepared ErrorCode = 700
	ErrCodeRunAborted        ErrorCode = 701
	ErrCodeProviderFailed    ErrorCode = 702

	// Store errors (800-899)
	ErrCodeStoreOpenFailed  ErrorCode = 800
	ErrCodeStoreQueryFailed ErrorCode = 801
	ErrCodeStoreWriteFailed ErrorCode = 802
)

// IsFatalCode reports whether the code belongs to a category that must always
// surface to the caller (data errors and bias violations).
func IsFatalCode(code ErrorCode) bool {
	return (code >= 100 && code < 300) || code == ErrCodeRunAborted
}
