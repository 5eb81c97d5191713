package errors

// ErrorCode identifies an application error class in API responses.
type ErrorCode int

const (
	ErrorCode_HTTP_OK ErrorCode = 200

	// General
	ErrorCode_INTERNAL          ErrorCode = 1000
	ErrorCode_INVALID_ARGUMENT  ErrorCode = 1001
	ErrorCode_UNAUTHENTICATED   ErrorCode = 1003
	ErrorCode_PERMISSION_DENIED ErrorCode = 1004
	ErrorCode_INVALID_PAYLOAD   ErrorCode = 1005

	// Authentication
	ErrorCode_AUTH_INVALID_TOKEN ErrorCode = 2001
	ErrorCode_AUTH_TOKEN_EXPIRED ErrorCode = 2002

	// Indexing
	ErrorCode_EMBEDDING_PROVIDER_FAILED ErrorCode = 3001
	ErrorCode_JOB_CREATION_FAILED       ErrorCode = 3002
	ErrorCode_JOB_NOT_FOUND             ErrorCode = 3003
	ErrorCode_RECOVERY_FAILED           ErrorCode = 3004
	ErrorCode_QUEUE_DRAIN_FAILED        ErrorCode = 3005

	// Database
	ErrorCode_DB_CONNECTION_FAILED ErrorCode = 4001
	ErrorCode_DB_QUERY_FAILED      ErrorCode = 4002
)

var errorCodeNames = map[ErrorCode]string{
	ErrorCode_HTTP_OK:                   "HTTP_OK",
	ErrorCode_INTERNAL:                  "INTERNAL",
	ErrorCode_INVALID_ARGUMENT:          "INVALID_ARGUMENT",
	ErrorCode_UNAUTHENTICATED:           "UNAUTHENTICATED",
	ErrorCode_PERMISSION_DENIED:         "PERMISSION_DENIED",
	ErrorCode_INVALID_PAYLOAD:           "INVALID_PAYLOAD",
	ErrorCode_AUTH_INVALID_TOKEN:        "AUTH_INVALID_TOKEN",
	ErrorCode_AUTH_TOKEN_EXPIRED:        "AUTH_TOKEN_EXPIRED",
	ErrorCode_EMBEDDING_PROVIDER_FAILED: "EMBEDDING_PROVIDER_FAILED",
	ErrorCode_JOB_CREATION_FAILED:       "JOB_CREATION_FAILED",
	ErrorCode_JOB_NOT_FOUND:             "JOB_NOT_FOUND",
	ErrorCode_RECOVERY_FAILED:           "RECOVERY_FAILED",
	ErrorCode_QUEUE_DRAIN_FAILED:        "QUEUE_DRAIN_FAILED",
	ErrorCode_DB_CONNECTION_FAILED:      "DB_CONNECTION_FAILED",
	ErrorCode_DB_QUERY_FAILED:           "DB_QUERY_FAILED",
}

// String returns the symbolic name of the code.
func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}
