package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/zulandar/lifeline/internal/sos"
)

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// statusFor maps a service error to an HTTP status and client message.
// Internal failures get the generic fallback so storage detail stays in
// the logs.
func statusFor(err error, fallback string) (int, errorBody) {
	var (
		ve *sos.ValidationError
		nf *sos.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, errorBody{Error: "invalid request", Details: ve.Error()}
	case errors.As(err, &nf):
		return http.StatusNotFound, errorBody{Error: nf.Error()}
	case errors.Is(err, sos.ErrNoContacts):
		return http.StatusNotFound, errorBody{Error: "no emergency contacts found", Details: err.Error()}
	}
	return http.StatusInternalServerError, errorBody{Error: fallback}
}

func writeError(c *gin.Context, err error, fallback string) {
	status, body := statusFor(err, fallback)
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).WithField("user_id", c.GetString(userIDKey)).Error("api: " + fallback)
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body", Details: err.Error()})
}
