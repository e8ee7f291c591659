package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{apperr.NotFound("record x"), http.StatusNotFound},
		{apperr.InvalidTransition("approved -> appealed"), http.StatusConflict},
		{apperr.Conflict("stale"), http.StatusConflict},
		{apperr.Validation("bad percentage"), http.StatusUnprocessableEntity},
		{apperr.Storage("save", errors.New("dial tcp: refused")), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		Error(c, tc.err)
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
		assert.True(t, c.IsAborted())
	}
}

func TestStorageErrorHidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Error(c, apperr.Storage("save", errors.New("secret dsn leaked")))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "storage failure", body["message"])
}

func TestOKWrapsSlices(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	OK(c, []int{1, 2})
	assert.JSONEq(t, `{"data":[1,2]}`, w.Body.String())
}
