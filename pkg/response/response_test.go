package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestSendAPIResponse_FailureCarriesError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	SendError(c, http.StatusUnauthorized, "invalid token")

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.True(t, c.IsAborted())
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.Equal(t, "invalid token", resp.Error)
	require.Nil(t, resp.Data)
}

func TestSendAPIResponse_SuccessOmitsError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	SendAPIResponse(c, http.StatusOK, true, "ok", gin.H{"unread_count": 0})

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	require.Equal(t, true, raw["success"])
	require.NotContains(t, raw, "error")
	require.Equal(t, map[string]any{"unread_count": float64(0)}, raw["data"])
}
