package middleware

import (
	"errors"
	"net/http"

	apiError "ledger-cms/internal/errors"
	"ledger-cms/internal/logger"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next() // Execute the handler first

		// detect any errors
		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err

			var apiErr *apiError.APIError

			// if it's our custom APIError
			if !errors.As(err, &apiErr) {
				apiErr = translate(err)
			}

			entry := logger.Log.With().
				Str("request_id", c.GetString(RequestIDKey)).
				Str("path", c.FullPath()).
				Logger()
			if apiErr.Status >= 500 {
				entry.Error().Err(err).Msg(apiErr.Message)
			} else {
				entry.Info().Err(err).Msg(apiErr.Message)
			}

			c.AbortWithStatusJSON(apiErr.Status, apiErr)
		}
	}
}

// translate maps domain sentinels onto API errors so call sites can return
// wrapped sentinels without building responses themselves.
func translate(err error) *apiError.APIError {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apiError.NotFound("Not found", err)
	case errors.Is(err, apiError.ErrInvalidReference):
		return apiError.InvalidReference("Invalid reference", err)
	case errors.Is(err, apiError.ErrMissingContentType):
		return apiError.New(http.StatusNotFound, apiError.CodeMissingContentType, "Unknown content type", err)
	case errors.Is(err, apiError.ErrUnknownContentClass):
		return apiError.New(http.StatusInternalServerError, apiError.CodeUnknownContentClass, "Unknown content class", err)
	case errors.Is(err, apiError.ErrAlreadyAssociated):
		return apiError.New(http.StatusConflict, apiError.CodeAlreadyAssociated, "Node already has content", err)
	case errors.Is(err, apiError.ErrDuplicateRevision):
		return apiError.New(http.StatusInternalServerError, apiError.CodeDuplicateRevision, "Revision already archived", err)
	case errors.Is(err, apiError.ErrAlreadyExists):
		return apiError.Conflict("Already exists", err)
	default:
		return apiError.Internal(err)
	}
}
