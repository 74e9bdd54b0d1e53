// Package errors provides structured error handling for the content search service.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (queue store, engine files, locks)
//   - 3XX: Transport errors
//   - 4XX: Validation and query errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates queue store and index storage errors.
	CategoryStorage Category = "STORAGE"
	// CategoryTransport indicates daemon socket errors.
	CategoryTransport Category = "TRANSPORT"
	// CategoryValidation indicates rejected input or queries.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStoreUnavailable = "ERR_201_STORE_UNAVAILABLE"
	ErrCodeIndexLocked      = "ERR_202_INDEX_LOCKED"
	ErrCodeCorruptIndex     = "ERR_203_CORRUPT_INDEX"
	ErrCodeIndexClosed      = "ERR_204_INDEX_CLOSED"
	ErrCodeEngineCommit     = "ERR_205_ENGINE_COMMIT"
	ErrCodeDataDirLocked    = "ERR_206_DATA_DIR_LOCKED"

	// Transport errors (300-399)
	ErrCodeDaemonUnavailable = "ERR_301_DAEMON_UNAVAILABLE"
	ErrCodeDaemonTimeout     = "ERR_302_DAEMON_TIMEOUT"

	// Validation errors (400-499)
	ErrCodeInvalidInput   = "ERR_401_INVALID_INPUT"
	ErrCodeUnknownIndex   = "ERR_402_UNKNOWN_INDEX"
	ErrCodeInvalidQuery   = "ERR_403_INVALID_QUERY"
	ErrCodeQueryEmpty     = "ERR_404_QUERY_EMPTY"
	ErrCodeInvalidPaging  = "ERR_405_INVALID_PAGING"
	ErrCodeInvalidRequest = "ERR_406_INVALID_REQUEST"

	// Internal errors (500-599)
	ErrCodeInternal      = "ERR_501_INTERNAL"
	ErrCodeSearchFailed  = "ERR_502_SEARCH_FAILED"
	ErrCodeProcessFailed = "ERR_503_PROCESS_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryTransport
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeStoreUnavailable, ErrCodeDataDirLocked:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode reports whether a failure with this code may succeed on a later attempt.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeIndexLocked, ErrCodeEngineCommit, ErrCodeDaemonTimeout, ErrCodeProcessFailed:
		return true
	default:
		return false
	}
}
