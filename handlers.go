package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bitbucket.org/flowshare/allocation_backend/models"
	"bitbucket.org/flowshare/allocation_backend/models/reports"
	"bitbucket.org/flowshare/allocation_backend/utils"
)

func tenantIdFrom(c *gin.Context) string {
	tenantId, _ := utils.GetTenantIdFromContext(c.Request.Context())
	return tenantId
}

func idParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func writeModelError(c *gin.Context, err error) {
	if errors.Is(err, utils.ErrorRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func createProductionEntryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewProductionEntry
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		// The authenticated tenant always wins over whatever the body says.
		input.TenantId = tenantIdFrom(c)

		entry, err := models.CreateProductionEntry(c.Request.Context(), input)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

func updateProductionEntryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var input models.NewProductionEntry
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		input.TenantId = tenantIdFrom(c)

		entry, err := models.UpdateProductionEntry(c.Request.Context(), id, input)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

func getProductionEntryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		entry, err := models.GetProductionEntry(c.Request.Context(), tenantIdFrom(c), id)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

func listProductionEntriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var status *models.ProductionEntryStatus
		if s := c.Query("status"); s != "" {
			parsed, err := models.ParseProductionEntryStatus(s)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			status = &parsed
		}
		limit, _ := strconv.Atoi(c.Query("limit"))

		entries, err := models.ListProductionEntries(c.Request.Context(), tenantIdFrom(c), status, limit)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

func deleteProductionEntryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		if err := models.DeleteProductionEntry(c.Request.Context(), tenantIdFrom(c), id); err != nil {
			writeModelError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type transitionRequest struct {
	Notes string `json:"notes"`
}

func transitionProductionEntryHandler(next models.ProductionEntryStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		var req transitionRequest
		// Notes are optional; an empty body is fine.
		_ = c.ShouldBindJSON(&req)

		entry, err := models.TransitionProductionEntry(c.Request.Context(), tenantIdFrom(c), id, next, req.Notes)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

func createTerminalReceiptHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewTerminalReceipt
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		input.TenantId = tenantIdFrom(c)

		receipt, err := models.CreateTerminalReceipt(c.Request.Context(), input)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusCreated, receipt)
	}
}

func getTerminalReceiptHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		receipt, err := models.GetTerminalReceipt(c.Request.Context(), tenantIdFrom(c), id)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, receipt)
	}
}

func listTerminalReceiptsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		receipts, err := models.ListTerminalReceipts(c.Request.Context(), tenantIdFrom(c), limit)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, receipts)
	}
}

func deleteTerminalReceiptHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		if err := models.DeleteTerminalReceipt(c.Request.Context(), tenantIdFrom(c), id); err != nil {
			writeModelError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type newReconciliationRequest struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

func createReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req newReconciliationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		recon, err := models.CreateReconciliation(c.Request.Context(), models.NewReconciliation{
			TenantId:    tenantIdFrom(c),
			PeriodStart: req.PeriodStart,
			PeriodEnd:   req.PeriodEnd,
		})
		if err != nil {
			writeModelError(c, err)
			return
		}

		triggerReconciliation(c, recon)
	}
}

func getReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		recon, err := models.GetReconciliation(c.Request.Context(), tenantIdFrom(c), id)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, recon)
	}
}

func listReconciliationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var status *models.ReconciliationStatus
		if s := c.Query("status"); s != "" {
			parsed, err := models.ParseReconciliationStatus(s)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			status = &parsed
		}
		limit, _ := strconv.Atoi(c.Query("limit"))

		recons, err := models.ListReconciliations(c.Request.Context(), tenantIdFrom(c), status, limit)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, recons)
	}
}

func exportReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c)
		if !ok {
			return
		}
		f, err := reports.GetAllocationReport(c.Request.Context(), tenantIdFrom(c), id)
		if err != nil {
			writeModelError(c, err)
			return
		}
		defer f.Close()

		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=reconciliation-"+strconv.Itoa(id)+".xlsx")
		if err := f.Write(c.Writer); err != nil {
			c.Status(http.StatusInternalServerError)
		}
	}
}
