package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fintrack/insight-engine/internal/ml"
)

// ModelHandler exposes the train/predict/detect/persist surface of the model
// service.
type ModelHandler struct {
	modelService *ml.ModelService
	logger       *logrus.Logger
}

// NewModelHandler builds a model handler.
func NewModelHandler(modelService *ml.ModelService, logger *logrus.Logger) *ModelHandler {
	return &ModelHandler{modelService: modelService, logger: logger}
}

type trainRequest struct {
	Transactions []TransactionRequest `json:"transactions" binding:"required"`
}

type trainResponse struct {
	Trained bool           `json:"trained"`
	Status  ml.ModelStatus `json:"status"`
}

// Train fits both models over one batch.
func (h *ModelHandler) Train(c *gin.Context) {
	var req trainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	batch, err := ToBatch(req.Transactions)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trained, err := h.modelService.TrainModels(c.Request.Context(), batch)
	if err != nil {
		if ml.IsDataError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "training budget exceeded"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, trainResponse{Trained: trained, Status: h.modelService.Status()})
}

type predictRequest struct {
	Transaction TransactionRequest `json:"transaction" binding:"required"`
}

type predictResponse struct {
	Category *string `json:"category"`
}

// PredictCategory predicts the spending category for one transaction. An
// untrained or failing model yields a null category, matching the
// best-effort contract of the insights feature.
func (h *ModelHandler) PredictCategory(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tx, err := req.Transaction.ToTransaction()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	category, err := h.modelService.PredictCategory(tx)
	if err != nil {
		if ml.IsDataError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, predictResponse{Category: nil})
		return
	}
	c.JSON(http.StatusOK, predictResponse{Category: &category})
}

type detectRequest struct {
	Transactions []TransactionRequest `json:"transactions" binding:"required"`
}

// DetectAnomalies scores a batch and returns the flagged expense rows.
func (h *ModelHandler) DetectAnomalies(c *gin.Context) {
	var req detectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	batch, err := ToBatch(req.Transactions)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	anomalies, err := h.modelService.DetectAnomalies(batch)
	if err != nil {
		if ml.IsDataError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"anomalies": anomalies})
}

type persistRequest struct {
	Path string `json:"path"`
}

// Save persists the current bundle to disk. The body is optional; without a
// path the configured model path is used.
func (h *ModelHandler) Save(c *gin.Context) {
	var req persistRequest
	_ = c.ShouldBindJSON(&req)
	if err := h.modelService.SaveModels(req.Path); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": h.modelService.IsTrained()})
}

// Load replaces the in-memory bundle from a persisted blob.
func (h *ModelHandler) Load(c *gin.Context) {
	var req persistRequest
	_ = c.ShouldBindJSON(&req)
	loaded := h.modelService.LoadModels(req.Path)
	c.JSON(http.StatusOK, gin.H{"loaded": loaded, "status": h.modelService.Status()})
}
