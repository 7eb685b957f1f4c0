package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/insight-engine/internal/config"
	"github.com/fintrack/insight-engine/internal/ml"
	"github.com/fintrack/insight-engine/internal/services"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := config.Default()
	cfg.ML.ModelPath = filepath.Join(t.TempDir(), "models.bin")

	modelService := ml.NewModelService(cfg.ML, logger)
	insightService := services.NewInsightService(modelService, logger)

	router := gin.New()
	SetupRoutes(router, cfg, logger, modelService, insightService)
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func txPayload(id string, amount float64, txType, category, date string) map[string]interface{} {
	return map[string]interface{}{
		"id":       id,
		"amount":   amount,
		"type":     txType,
		"category": category,
		"date":     date,
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body, "models")
	assert.Contains(t, body, "resources")
}

func TestPredictCategory_UntrainedReturnsNull(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/models/predict-category", map[string]interface{}{
		"transaction": txPayload("t1", 25, "expense", "", "2024-05-01"),
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Category *string `json:"category"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Nil(t, body.Category)
}

func TestPredictCategory_BadDateIsRejected(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/models/predict-category", map[string]interface{}{
		"transaction": txPayload("t1", 25, "expense", "", "05/01/2024"),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrain_BadTypeIsRejected(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/models/train", map[string]interface{}{
		"transactions": []map[string]interface{}{
			txPayload("t1", 25, "refund", "food", "2024-05-01"),
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrain_SmallBatchReportsUntrained(t *testing.T) {
	router := newTestRouter(t)

	batch := make([]map[string]interface{}, 0, 5)
	for i := 0; i < 5; i++ {
		batch = append(batch, txPayload(fmt.Sprintf("t%d", i), 20+float64(i), "expense", "food", fmt.Sprintf("2024-05-0%d", i+1)))
	}
	w := doJSON(router, http.MethodPost, "/api/v1/models/train", map[string]interface{}{"transactions": batch})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Trained bool `json:"trained"`
		Status  struct {
			IsTrained bool `json:"is_trained"`
		} `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Trained)
	assert.False(t, body.Status.IsTrained)
}

func TestTrainThenPredictAndDetect(t *testing.T) {
	router := newTestRouter(t)

	batch := make([]map[string]interface{}, 0, 26)
	for i := 0; i < 25; i++ {
		category := "food"
		amount := 20 + float64(i)
		if i%3 == 0 {
			category = "rent"
			amount = 800 + float64(i)
		}
		batch = append(batch, txPayload(fmt.Sprintf("t%d", i), amount, "expense", category, fmt.Sprintf("2024-05-%02d", i+1)))
	}
	batch = append(batch, txPayload("huge", 50000, "expense", "food", "2024-05-15"))

	w := doJSON(router, http.MethodPost, "/api/v1/models/train", map[string]interface{}{"transactions": batch})
	require.Equal(t, http.StatusOK, w.Code)

	var trainBody struct {
		Trained bool `json:"trained"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trainBody))
	require.True(t, trainBody.Trained)

	w = doJSON(router, http.MethodPost, "/api/v1/models/predict-category", map[string]interface{}{
		"transaction": txPayload("new", 850, "expense", "", "2024-06-01"),
	})
	require.Equal(t, http.StatusOK, w.Code)
	var predictBody struct {
		Category *string `json:"category"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &predictBody))
	require.NotNil(t, predictBody.Category)
	assert.Contains(t, []string{"food", "rent"}, *predictBody.Category)

	w = doJSON(router, http.MethodPost, "/api/v1/models/detect-anomalies", map[string]interface{}{"transactions": batch})
	require.Equal(t, http.StatusOK, w.Code)
	var detectBody struct {
		Anomalies []struct {
			TransactionID string  `json:"transaction_id"`
			Confidence    float64 `json:"confidence"`
		} `json:"anomalies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detectBody))
	require.NotEmpty(t, detectBody.Anomalies)
	for _, a := range detectBody.Anomalies {
		assert.Equal(t, 0.8, a.Confidence)
	}
}

func TestSaveLoadEndpoints(t *testing.T) {
	router := newTestRouter(t)
	path := filepath.Join(t.TempDir(), "models.bin")

	// Untrained save is a no-op, so a following load finds nothing.
	w := doJSON(router, http.MethodPost, "/api/v1/models/save", map[string]interface{}{"path": path})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/models/load", map[string]interface{}{"path": path})
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Loaded bool `json:"loaded"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Loaded)
}

func TestInsightsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/insights/generate", map[string]interface{}{
		"transactions": []map[string]interface{}{
			txPayload("e1", 40, "expense", "food", "2024-05-01"),
			txPayload("i1", 200, "income", "salary", "2024-05-02"),
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Insights []struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"insights"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Insights)
	assert.Equal(t, "summary", body.Insights[0].Type)
	assert.Contains(t, body.Insights[0].Message, "$40.00")
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/models/train", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
