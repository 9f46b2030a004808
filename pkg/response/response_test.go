package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-attendance-api/internal/models"
	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
)

func testContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestJSONEnvelope(t *testing.T) {
	c, w := testContext()
	JSON(c, http.StatusOK, []string{}, &models.Pagination{Page: 1, PageSize: 50}, map[string]interface{}{"count": 0})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"data":[],"pagination":{"page":1,"page_size":50,"total_count":0},"meta":{"count":0}}`, w.Body.String())
}

func TestJSONSkipsEmptyMeta(t *testing.T) {
	c, w := testContext()
	JSON(c, http.StatusOK, map[string]string{"status": "ok"}, nil, map[string]interface{}{})
	assert.JSONEq(t, `{"data":{"status":"ok"}}`, w.Body.String())
}

func TestAccepted(t *testing.T) {
	c, w := testContext()
	Accepted(c, map[string]int{"queued": 3})
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestErrorAborts(t *testing.T) {
	c, w := testContext()
	Error(c, appErrors.Clone(appErrors.ErrNotFound, "student not found"))

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusNotFound, w.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, "student not found", env.Error.Message)

	c, w = testContext()
	Error(c, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
