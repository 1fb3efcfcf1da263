package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ResponseData is the envelope every JSON response is wrapped in. Exactly one
// of Data and Error is set.
type ResponseData struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

const errorMessage = "An error occurred"

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, ResponseData{Status: status, Message: message, Data: data})
}

// fail writes an error envelope and aborts the handler chain.
func fail(c *gin.Context, status int, reason string) {
	c.AbortWithStatusJSON(status, ResponseData{Status: status, Message: errorMessage, Error: reason})
}

func Success(c *gin.Context, message string, data interface{}) {
	respond(c, http.StatusOK, message, data)
}

func Created(c *gin.Context, message string, data interface{}) {
	respond(c, http.StatusCreated, message, data)
}

// NoContent is used for revocations, which have nothing to return.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func BadRequest(c *gin.Context, reason string) { fail(c, http.StatusBadRequest, reason) }

func Unauthorized(c *gin.Context, reason string) { fail(c, http.StatusUnauthorized, reason) }

func Forbidden(c *gin.Context, reason string) { fail(c, http.StatusForbidden, reason) }

func NotFound(c *gin.Context, reason string) { fail(c, http.StatusNotFound, reason) }

// Conflict covers concurrent refreshes of one session and deletes blocked by
// rows that still reference a user.
func Conflict(c *gin.Context, reason string) { fail(c, http.StatusConflict, reason) }

func TooManyRequests(c *gin.Context, reason string) { fail(c, http.StatusTooManyRequests, reason) }

// InternalServerError never carries driver or storage detail; callers log the
// cause and pass a generic reason.
func InternalServerError(c *gin.Context, reason string) {
	fail(c, http.StatusInternalServerError, reason)
}
