package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/sentinel/internal/pkg/bark"
	"github.com/redis/go-redis/v9"
)

// RateLimit caps each caller at max requests per window on the routes it
// guards. Callers are keyed by user id, falling back to client IP. Redis
// errors let the request through.
func RateLimit(rdb *redis.Client, barkSvc *bark.Service, scope string, max int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		who := CurrentUserID(c)
		if who == "" {
			who = c.ClientIP()
		}
		if who == "" || rdb == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		bucket := time.Now().UnixNano() / int64(window)
		key := fmt.Sprintf("sentinel:rate_limit:%s:%s:%d", scope, who, bucket)

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}

		if count == 1 {
			rdb.PExpire(ctx, key, window+time.Second)
		}

		if count > max {
			if barkSvc != nil {
				path := c.Request.URL.Path
				go barkSvc.ThrottlePush(context.Background(), scope+"|"+who,
					"rate limit exceeded", fmt.Sprintf("caller %s on %s", who, path))
			}
			c.Header("Retry-After", fmt.Sprintf("%d", int(window.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"ok":      0,
				"code":    http.StatusTooManyRequests,
				"message": "too many requests",
			})
			return
		}

		c.Next()
	}
}
