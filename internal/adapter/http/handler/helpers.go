package handler

import (
	"subscription-ledger/internal/adapter/http/dto"
	"subscription-ledger/internal/adapter/http/middleware"
	"subscription-ledger/pkg/apperror"
	"subscription-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// caller returns the authenticated identity or writes AUTH_003.
func caller(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.CallerID(c)
	if !ok {
		abortWith(c, apperror.ErrInvalidToken())
		return uuid.Nil, false
	}
	return id, true
}

// pathID parses a uuid path parameter or writes SUB_005.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		abortWith(c, apperror.ErrInvalidArgument(name+" must be a uuid"))
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON binds and sanitizes a request body or writes SUB_005.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		abortWith(c, apperror.Validation(err.Error()))
		return false
	}
	dto.SanitizeStruct(req)
	return true
}

func abortWith(c *gin.Context, err error) {
	response.Error(c, err)
	c.Abort()
}

// bindOptionalJSON is bindJSON for endpoints whose body may be empty.
func bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, req)
}
