package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"legalmind/internal/services"
)

const maxCaseResults = 20

type CaseLawHandler struct {
	cases *services.CaseLawService
}

func NewCaseLawHandler(cases *services.CaseLawService) *CaseLawHandler {
	return &CaseLawHandler{cases: cases}
}

func (h *CaseLawHandler) SearchCases(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "5"))
	if err != nil || limit <= 0 {
		limit = 5
	}
	if limit > maxCaseResults {
		limit = maxCaseResults
	}

	cases := h.cases.Search(q, limit)
	c.JSON(http.StatusOK, gin.H{"cases": cases, "total": len(cases)})
}

func (h *CaseLawHandler) GetCase(c *gin.Context) {
	cl, ok := h.cases.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	c.JSON(http.StatusOK, cl)
}
