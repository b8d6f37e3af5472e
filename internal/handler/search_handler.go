package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mdesk/internal/pkg/response"
	"github.com/xxxsen/mdesk/internal/search"
	"github.com/xxxsen/mdesk/internal/service"
)

type SearchHandler struct {
	search *service.SearchService
}

func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

// Search serves GET /search?q=&types=note,chat&limit=.
func (h *SearchHandler) Search(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}
	types, err := search.ParseEntityTypes(c.Query("types"))
	if err != nil {
		response.Invalid(c, err.Error())
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		response.Invalid(c, "invalid limit")
		return
	}
	result, err := h.search.Search(c.Request.Context(), scope, c.Query("q"), types, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}
