package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contextFor(t *testing.T, rawQuery string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/items?"+rawQuery, nil)
	return c
}

func TestFromContext(t *testing.T) {
	q, err := FromContext(contextFor(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Query{Page: DefaultPage, Size: DefaultSize}, q)

	q, err = FromContext(contextFor(t, "page=3&size=500"))
	require.NoError(t, err)
	assert.Equal(t, Query{Page: 3, Size: MaxSize}, q)

	for _, raw := range []string{"page=0", "size=-1", "page=abc"} {
		_, err = FromContext(contextFor(t, raw))
		assert.ErrorIs(t, err, apperr.ErrValidation, raw)
	}
}

func TestMeta(t *testing.T) {
	q := Query{Page: 2, Size: 10}
	assert.Equal(t, 10, q.Offset())

	m := q.Meta(25)
	assert.Equal(t, 3, m.TotalPage)
	assert.True(t, m.HasNextPage)

	m = Query{Page: 3, Size: 10}.Meta(25)
	assert.False(t, m.HasNextPage)

	m = q.Meta(0)
	assert.Zero(t, m.TotalPage)
	assert.False(t, m.HasNextPage)
}
