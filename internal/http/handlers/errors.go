package handlers

import (
	"errors"
	"net/http"

	"github.com/saidovdiyorbek/threads/internal/remote"
	"github.com/saidovdiyorbek/threads/internal/services"
)

// Generic codes. They mirror the HTTP status they are sent with.
const (
	CodeBadRequest       = http.StatusBadRequest
	CodeUnauthorized     = http.StatusUnauthorized
	CodeNotFound         = http.StatusNotFound
	CodeMethodNotAllowed = http.StatusMethodNotAllowed
	CodeRateLimited      = http.StatusTooManyRequests
	CodeInternal         = http.StatusInternalServerError
	CodeUpstream         = http.StatusBadGateway
	CodeServiceDown      = http.StatusServiceUnavailable
)

var kindStatus = map[services.Kind]int{
	services.KindNotFound:     http.StatusNotFound,
	services.KindConflict:     http.StatusConflict,
	services.KindForbidden:    http.StatusForbidden,
	services.KindValidation:   http.StatusBadRequest,
	services.KindUnauthorized: http.StatusUnauthorized,
	services.KindStorage:      http.StatusInternalServerError,
}

// statusOf maps an error returned by a service to (status, code, message).
//
//   - service errors use their kind's status and their own code; validation
//     keeps the detail of the wrapped message
//   - a remote 4xx is passed through with the remote code and message
//   - any other remote failure is a 502
//   - everything else is a 500 with a generic message
func statusOf(err error) (status, code int, msg string) {
	var se *services.Error
	if errors.As(err, &se) {
		status = kindStatus[se.Kind]
		if status == 0 {
			status = http.StatusInternalServerError
		}
		msg = se.Message
		if se.Kind == services.KindValidation {
			msg = err.Error()
		}
		return status, se.Code, msg
	}

	var re *remote.Error
	if errors.As(err, &re) {
		if re.Status >= 400 && re.Status < 500 {
			code = re.Code
			if code == 0 {
				code = re.Status
			}
			msg = re.Message
			if msg == "" {
				msg = http.StatusText(re.Status)
			}
			return re.Status, code, msg
		}
		return http.StatusBadGateway, CodeUpstream, re.Service + " service call failed"
	}

	return http.StatusInternalServerError, CodeInternal, "internal server error"
}
