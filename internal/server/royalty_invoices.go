package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	royaltydomain "github.com/campforge/campforge/internal/royalty/domain"
	"github.com/campforge/campforge/pkg/db/pagination"
	"github.com/gin-gonic/gin"
)

type listInvoicesQuery struct {
	pagination.Pagination
	TenantID   string `form:"tenant_id"`
	Status     string `form:"status"`
	PeriodFrom string `form:"period_from"`
	PeriodTo   string `form:"period_to"`
	Search     string `form:"q"`
	SortBy     string `form:"sort_by"`
	Order      string `form:"order"`
}

func (s *Server) ListRoyaltyInvoices(c *gin.Context) {
	var query listInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, newValidationError("query", "invalid_query", "invalid query parameters"))
		return
	}

	req := royaltydomain.ListInvoiceRequest{
		Pagination: query.Pagination,
		Search:     strings.TrimSpace(query.Search),
		SortBy:     strings.TrimSpace(query.SortBy),
		SortDesc:   strings.EqualFold(query.Order, "desc"),
	}

	if raw := strings.TrimSpace(query.TenantID); raw != "" {
		tenantID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("tenant_id", "invalid_id", "invalid tenant id"))
			return
		}
		req.TenantID = &tenantID
	}
	if raw := strings.TrimSpace(query.Status); raw != "" {
		status := royaltydomain.InvoiceStatus(raw)
		req.Status = &status
	}
	if raw := strings.TrimSpace(query.PeriodFrom); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("period_from", "invalid_time", "expected RFC 3339 timestamp"))
			return
		}
		req.PeriodFrom = &from
	}
	if raw := strings.TrimSpace(query.PeriodTo); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("period_to", "invalid_time", "expected RFC 3339 timestamp"))
			return
		}
		req.PeriodTo = &to
	}

	resp, err := s.royaltySvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":            resp.Invoices,
		"next_page_token": resp.NextPageToken,
		"has_more":        resp.HasMore,
	})
}

func (s *Server) GetRoyaltyInvoice(c *gin.Context) {
	id, ok := s.invoiceIDParam(c)
	if !ok {
		return
	}

	invoice, err := s.royaltySvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) AddInvoiceAdjustment(c *gin.Context) {
	id, ok := s.invoiceIDParam(c)
	if !ok {
		return
	}

	var req royaltydomain.AddAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "invalid request body"))
		return
	}
	req.InvoiceID = id

	invoice, err := s.royaltySvc.AddAdjustment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) MarkInvoicePaid(c *gin.Context) {
	id, ok := s.invoiceIDParam(c)
	if !ok {
		return
	}

	var req royaltydomain.MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "invalid request body"))
		return
	}
	req.InvoiceID = id

	invoice, err := s.royaltySvc.MarkPaid(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) UpdateInvoiceStatus(c *gin.Context) {
	id, ok := s.invoiceIDParam(c)
	if !ok {
		return
	}

	var req royaltydomain.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "invalid request body"))
		return
	}
	req.InvoiceID = id

	invoice, err := s.royaltySvc.UpdateStatus(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) invoiceIDParam(c *gin.Context) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	id, err := snowflake.ParseString(raw)
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return 0, false
	}
	return id, true
}
