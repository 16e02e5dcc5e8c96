package ses

import (
	"context"
	"errors"
	"net"

	"github.com/aws/smithy-go"
)

// Error codes reported for failures that carry no provider code.
const (
	CodeTimeout  = "Timeout"
	CodeCanceled = "Canceled"
	CodeUnknown  = "Unknown"
)

var retryableCodes = map[string]bool{
	// throttling
	"TooManyRequestsException": true,
	"LimitExceededException":   true,
	"Throttling":               true,
	"ThrottlingException":      true,
	// transient service unavailability
	"ServiceUnavailable":          true,
	"ServiceUnavailableException": true,
	"InternalFailure":             true,
	"InternalServiceError":        true,
	"RequestTimeout":              true,
	"RequestTimeoutException":     true,
}

var permanentCodes = map[string]bool{
	"AccountSuspendedException":          true,
	"SendingPausedException":             true,
	"MessageRejected":                    true,
	"MailFromDomainNotVerifiedException": true,
	"BadRequestException":                true,
	"NotFoundException":                  true,
	"AccessDeniedException":              true,
	"InvalidParameterValue":              true,
}

// Classify maps a send error to a provider code and whether retrying can
// help. Anything not recognised as transient is permanent.
func Classify(err error) (code string, retryable bool) {
	if err == nil {
		return "", false
	}
	if errors.Is(err, context.Canceled) {
		return CodeCanceled, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout, true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
		switch {
		case retryableCodes[code]:
			return code, true
		case permanentCodes[code]:
			return code, false
		default:
			return code, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout, true
	}
	return CodeUnknown, false
}
