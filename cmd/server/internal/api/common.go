package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gijibot/gijibot/pkg/logger"
)

func errorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"error": message,
	})
}

func badRequestResponse(c *gin.Context, message string) {
	errorResponse(c, http.StatusBadRequest, message)
}

// internalErrorResponse logs the real error and returns a generic
// message; internals never leak to clients.
func internalErrorResponse(c *gin.Context, err error) {
	logger.L().Error("internal error", "path", c.Request.URL.Path, "error", err)
	errorResponse(c, http.StatusInternalServerError, "internal server error")
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}
