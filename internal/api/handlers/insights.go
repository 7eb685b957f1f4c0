package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fintrack/insight-engine/internal/ml"
	"github.com/fintrack/insight-engine/internal/services"
)

// InsightHandler exposes the insight generation endpoint.
type InsightHandler struct {
	insightService *services.InsightService
	logger         *logrus.Logger
}

// NewInsightHandler builds an insight handler.
func NewInsightHandler(insightService *services.InsightService, logger *logrus.Logger) *InsightHandler {
	return &InsightHandler{insightService: insightService, logger: logger}
}

type insightRequest struct {
	Transactions []TransactionRequest `json:"transactions" binding:"required"`
	UserID       string               `json:"user_id"`
	Timeframe    string               `json:"timeframe"`
}

// Generate produces insights, trends, anomalies and recommendations for a
// batch.
func (h *InsightHandler) Generate(c *gin.Context) {
	var req insightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	batch, err := ToBatch(req.Transactions)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.insightService.GenerateInsights(c.Request.Context(), batch)
	if err != nil {
		if ml.IsDataError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).WithField("user_id", req.UserID).Error("insight generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error generating insights"})
		return
	}
	c.JSON(http.StatusOK, report)
}
