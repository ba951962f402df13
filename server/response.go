package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/resilience-core/server/middleware"
)

// DataResponse is the standard success envelope.
type DataResponse struct {
	Data any   `json:"data"`
	Meta *Meta `json:"meta,omitempty"`
}

// Meta carries pagination metadata.
type Meta struct {
	Page       int   `json:"page,omitempty"`
	PageSize   int   `json:"pageSize,omitempty"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

// NewMeta computes page counts for a listing.
func NewMeta(page, pageSize int, total int64) *Meta {
	m := &Meta{Page: page, PageSize: pageSize, Total: total}
	if pageSize > 0 {
		m.TotalPages = (total + int64(pageSize) - 1) / int64(pageSize)
	}
	return m
}

// RespondWithError writes err as an AppError envelope; anything else becomes
// a generic 500.
func RespondWithError(c *gin.Context, err error) {
	middleware.AbortWithError(c, err)
}

// RespondOK sends a 200 response wrapping data.
func RespondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, DataResponse{Data: data})
}

// RespondOKWithMeta sends a 200 response with data and metadata.
func RespondOKWithMeta(c *gin.Context, data any, meta *Meta) {
	c.JSON(http.StatusOK, DataResponse{Data: data, Meta: meta})
}

// RespondCreated sends a 201 response wrapping data.
func RespondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, DataResponse{Data: data})
}

// RespondAccepted sends a 202 response wrapping data.
func RespondAccepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, DataResponse{Data: data})
}
