package errors

// Generic error code definitions used as sensible defaults across modules.
const (
	CodeSystemGeneric     = "SYS-000"
	CodeNetworkGeneric    = "NET-000"
	CodeConfigGeneric     = "CFG-000"
	CodeValidationGeneric = "VAL-000"
	CodeProcessGeneric    = "PRC-000"
	CodeStorageGeneric    = "STG-000"
	CodeIngestGeneric     = "ING-000"
)

// Specific codes referenced by callers and operators.
const (
	CodeInterrupted = "SYS-001"

	CodeNotReady       = "NET-001"
	CodeProbeRejected  = "NET-002"
	CodeUploadFailed   = "NET-003"
	CodeRequestFailed  = "NET-004"
	CodeCreateRepoFail = "NET-005"

	CodeConfigDecode = "CFG-001"
	CodeConfigEnv    = "CFG-002"

	CodeUnknownFormat     = "VAL-001"
	CodeDatasetNoMatch    = "VAL-002"
	CodeMissingRepository = "VAL-003"

	CodeProcessStart  = "PRC-001"
	CodeProcessExited = "PRC-002"
	CodeProcessStop   = "PRC-003"

	CodeLedgerOpen  = "STG-001"
	CodeLedgerQuery = "STG-002"

	CodeChecksumMismatch = "ING-001"
	CodeFileTooSmall     = "ING-002"
	CodeFileUnreadable   = "ING-003"
)
