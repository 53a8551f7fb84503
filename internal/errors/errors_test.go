package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAbortHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		abort  func(*gin.Context, string, map[string]any)
		status int
		code   string
	}{
		{"bad request", AbortWithBadRequest, http.StatusBadRequest, CodeBadRequest},
		{"not found", AbortWithNotFound, http.StatusNotFound, CodeNotFound},
		{"conflict", AbortWithConflict, http.StatusConflict, CodeConflict},
		{"internal", AbortWithInternal, http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			tt.abort(c, "went wrong", map[string]any{"message_id": "m1"})

			assert.True(t, c.IsAborted())
			assert.Equal(t, tt.status, w.Code)

			var body APIError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "went wrong", body.Error)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, "m1", body.Details["message_id"])
		})
	}
}
