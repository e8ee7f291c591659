package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const revenuePath = "/api/rights/:contentId/revenue"

// keyRouter records the idempotence key resolved for each request.
func keyRouter(keys *[]string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	explicit := map[string]struct{}{revenuePath: {}}
	record := func(c *gin.Context) {
		key, err := resolveIdempotenceKey(c, explicit)
		if err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		*keys = append(*keys, key)
		c.Status(http.StatusNoContent)
	}
	r.POST(revenuePath, record)
	r.POST("/api/moderation/:contentId/report", record)
	return r
}

func post(r http.Handler, path, body string, header map[string]string) int {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("User-Agent", "ingest/1.0")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestLedgerRoutesNeedExplicitKey(t *testing.T) {
	var keys []string
	r := keyRouter(&keys)
	body := `{"amount":500,"territory":"US"}`

	post(r, "/api/rights/v1/revenue", body, nil)
	post(r, "/api/rights/v1/revenue", body, map[string]string{idempotenceHeader: "evt-1"})
	post(r, "/api/moderation/v1/report", body, nil)
	post(r, "/api/moderation/v1/report", body, nil)

	require.Len(t, keys, 4)
	assert.Empty(t, keys[0], "body hash is not used on ledger routes")
	assert.Equal(t, "evt-1", keys[1])
	assert.NotEmpty(t, keys[2])
	assert.Equal(t, keys[2], keys[3])
}

func TestIdenticalRevenueEventsBothPass(t *testing.T) {
	url := os.Getenv("SENTINEL_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SENTINEL_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.FlushDB(context.Background()).Err())

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Idempotence(rdb, revenuePath))
	ok := func(c *gin.Context) { c.Status(http.StatusCreated) }
	r.POST(revenuePath, ok)
	r.POST("/api/moderation/:contentId/report", ok)

	body := `{"amount":500}`
	assert.Equal(t, http.StatusCreated, post(r, "/api/rights/v1/revenue", body, nil))
	assert.Equal(t, http.StatusCreated, post(r, "/api/rights/v1/revenue", body, nil))

	keyed := map[string]string{idempotenceHeader: "evt-9"}
	assert.Equal(t, http.StatusCreated, post(r, "/api/rights/v1/revenue", body, keyed))
	assert.Equal(t, http.StatusConflict, post(r, "/api/rights/v1/revenue", body, keyed))

	assert.Equal(t, http.StatusCreated, post(r, "/api/moderation/v1/report", body, nil))
	assert.Equal(t, http.StatusConflict, post(r, "/api/moderation/v1/report", body, nil))
}
