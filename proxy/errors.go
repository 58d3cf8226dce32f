package proxy

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/wenshu/pkg/chat"
	"github.com/papercomputeco/wenshu/pkg/dify"
)

// errorResponse is the JSON body of every failed gateway request.
type errorResponse struct {
	Success bool        `json:"success"`
	Error   errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// UpstreamStatus is the status Dify answered with, when it answered.
	UpstreamStatus int `json:"upstream_status,omitempty"`
}

// statusOf maps an error to the status the gateway answers with.
func statusOf(err error) int {
	var (
		fe *fiber.Error
		ve *dify.ValidationError
		ce *dify.ConfigurationError
	)

	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ce):
		return http.StatusInternalServerError
	case errors.Is(err, chat.ErrHistoryDisabled):
		return http.StatusServiceUnavailable
	case dify.IsAuthentication(err):
		return http.StatusUnauthorized
	case dify.IsRateLimit(err):
		return http.StatusTooManyRequests
	}

	if dify.StatusCode(err) == http.StatusNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

// errorHandler renders handler errors as errorResponse bodies.
func errorHandler(c *fiber.Ctx, err error) error {
	status := statusOf(err)

	detail := errorDetail{
		Code:           dify.ErrorCode(err),
		Message:        err.Error(),
		UpstreamStatus: dify.StatusCode(err),
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		detail.Code = "HTTP_ERROR"
		detail.UpstreamStatus = 0
	}

	return c.Status(status).JSON(errorResponse{Error: detail})
}
