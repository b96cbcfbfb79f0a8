package middleware

import (
	"livesession/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware renders the last error a handler attached with
// c.Error. AppErrors keep their code and status; anything else is a 500.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		if !errors.IsAppError(err) {
			logger.Errorw("unhandled error",
				"error", err.Error(),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
			renderError(c, errors.NewInternalError("Internal server error"))
			return
		}

		appErr := errors.GetAppError(err)
		if appErr.HTTPStatus >= 500 {
			logger.Errorw("request failed",
				"code", appErr.Code,
				"message", appErr.Message,
				"path", c.Request.URL.Path,
				"context", appErr.Context,
			)
		} else {
			logger.Debugw("request rejected",
				"code", appErr.Code,
				"message", appErr.Message,
				"path", c.Request.URL.Path,
			)
		}

		renderError(c, appErr)
	}
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				renderError(c, errors.NewInternalError("Internal server error"))
				c.Abort()
			}
		}()

		c.Next()
	}
}

func renderError(c *gin.Context, appErr *errors.AppError) {
	body := gin.H{
		"error":   string(appErr.Code),
		"message": appErr.Message,
	}
	if len(appErr.Context) > 0 {
		body["details"] = appErr.Context
	}
	c.JSON(appErr.HTTPStatus, body)
}
