package adapter

// DomainError is the typed protocol-shape error taxonomy from spec §7: a
// wrong-request-args condition rejected with a stable code and a message
// carried verbatim into the DAP error response.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string { return e.Message }

// The fixed set of domain error codes spec §7 names.
const (
	CodePathFormat                    = "pathFormat"
	CodeAttachPortRequired            = "attach.portRequired"
	CodeCompletionsStackFrameNotValid = "completionsStackFrameNotValid"
	CodeSourceRequestIllegalHandle    = "sourceRequestIllegalHandle"
	CodeSetValueNotSupported          = "setValueNotSupported"
	CodeErrorFromEvaluate             = "errorFromEvaluate"
)

func errPathFormat() error {
	return &DomainError{Code: CodePathFormat, Message: "only 'path' format sources are supported"}
}

func errAttachPortRequired() error {
	return &DomainError{Code: CodeAttachPortRequired, Message: "port required"}
}

func errCompletionsStackFrameNotValid() error {
	return &DomainError{Code: CodeCompletionsStackFrameNotValid, Message: "stack frame not valid"}
}

func errSourceRequestIllegalHandle() error {
	return &DomainError{Code: CodeSourceRequestIllegalHandle, Message: "illegal source reference"}
}

func errSetValueNotSupported() error {
	return &DomainError{Code: CodeSetValueNotSupported, Message: "setting this value is not supported"}
}

func errFromEvaluate(msg string) error {
	return &DomainError{Code: CodeErrorFromEvaluate, Message: msg}
}
