package errors

// ErrorDetail is the public portion of an error: a safe message plus any
// reportable details. Internal error text never leaves the process.
type ErrorDetail struct {
	Message string `json:"message"`
}

// ErrorResponse is the JSON error envelope returned by the API.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// NewErrorResponse builds the public envelope for err. The hint is preferred
// as the message; without one the caller gets only the generic sentinel text.
func NewErrorResponse(err error) ErrorResponse {
	message := Hint(err)
	if message == "" {
		switch {
		case IsValidation(err):
			message = "invalid request"
		case IsInvalidSignature(err):
			message = "invalid webhook signature"
		case IsNotFound(err):
			message = "resource not found"
		case IsAlreadyExists(err), IsConflict(err):
			message = "resource conflict"
		case IsPermissionDenied(err):
			message = "permission denied"
		default:
			message = "internal server error"
		}
	}
	return ErrorResponse{Error: ErrorDetail{Message: message}}
}
