package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-attendance-api/internal/models"
	"github.com/noah-isme/school-attendance-api/internal/service"
	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
)

type predictionServiceMock struct {
	status      models.ExternalServiceStatus
	studentID   string
	classID     string
	req         service.PredictRequest
	predictions []models.PerformancePrediction
	batch       *service.PredictionBatchResult
	err         error
}

func (m *predictionServiceMock) Health(ctx context.Context) models.ExternalServiceStatus {
	return m.status
}

func (m *predictionServiceMock) Predict(ctx context.Context, studentID string, req service.PredictRequest) ([]models.PerformancePrediction, error) {
	m.studentID = studentID
	m.req = req
	return m.predictions, m.err
}

func (m *predictionServiceMock) Latest(ctx context.Context, studentID, academicYear string) ([]models.PerformancePrediction, error) {
	m.studentID = studentID
	return m.predictions, m.err
}

func (m *predictionServiceMock) EnqueueClassBatch(ctx context.Context, classID string, req service.PredictRequest) (*service.PredictionBatchResult, error) {
	m.classID = classID
	m.req = req
	return m.batch, m.err
}

func TestPredictionHandlerHealth(t *testing.T) {
	h := NewPredictionHandler(&predictionServiceMock{status: models.ExternalServiceStatus{Service: "prediction", Available: false}})
	c, w := newGinContext(http.MethodGet, "/predictions/health", nil)
	h.Health(c)

	require.Equal(t, http.StatusOK, w.Code)
	var status models.ExternalServiceStatus
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &status))
	assert.False(t, status.Available)
}

func TestPredictionHandlerPredict(t *testing.T) {
	svc := &predictionServiceMock{predictions: []models.PerformancePrediction{{SubjectName: "Mathematics", PredictedPerformance: 81.5}}}
	h := NewPredictionHandler(svc)
	c, w := newGinContext(http.MethodPost, "/predictions/students/stu-1", []byte(`{"academic_year":"2023-2024","term":2}`))
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}
	h.Predict(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-1", svc.studentID)
	assert.Equal(t, 2, svc.req.Term)
}

func TestPredictionHandlerPredictUnavailable(t *testing.T) {
	svc := &predictionServiceMock{err: appErrors.Clone(appErrors.ErrServiceUnavailable, "prediction service is unavailable")}
	h := NewPredictionHandler(svc)
	c, w := newGinContext(http.MethodPost, "/predictions/students/stu-1", []byte(`{"academic_year":"2023-2024","term":1}`))
	c.Params = gin.Params{{Key: "id", Value: "stu-1"}}
	h.Predict(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPredictionHandlerClassBatch(t *testing.T) {
	svc := &predictionServiceMock{batch: &service.PredictionBatchResult{ClassID: "10-A", Queued: 2, JobIDs: []string{"a", "b"}}}
	h := NewPredictionHandler(svc)
	c, w := newGinContext(http.MethodPost, "/predictions/classes/10-A/batch", []byte(`{"academic_year":"2023-2024","term":1}`))
	c.Params = gin.Params{{Key: "id", Value: "10-A"}}
	h.ClassBatch(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "10-A", svc.classID)
}

func TestPredictionHandlerBatchMalformedBody(t *testing.T) {
	h := NewPredictionHandler(&predictionServiceMock{})
	c, w := newGinContext(http.MethodPost, "/predictions/classes/10-A/batch", []byte(`{"term":"one"}`))
	h.ClassBatch(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
