package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/verbatim-backend/internal/platform/apierr"
)

type APIError struct {
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondServiceError maps an error returned by the service layer onto the
// error envelope. Precondition failures list the missing prerequisites.
func RespondServiceError(c *gin.Context, err error) {
	status, code := apierr.HTTPStatus(err)
	if status < http.StatusBadRequest {
		status, code = http.StatusInternalServerError, "internal"
	}
	body := APIError{Message: err.Error(), Code: code}
	var pre *apierr.PreconditionError
	if errors.As(err, &pre) {
		body.Missing = pre.Missing
	}
	c.JSON(status, ErrorEnvelope{Error: body})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
