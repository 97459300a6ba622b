package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/presence/internal/pkg/response"
	"github.com/redis/go-redis/v9"
)

const rateLimitWindow = time.Second

// RateLimit caps anonymous requests per client IP to max per second. Counters live in Redis
// under prefix so every replica shares them. Redis errors let the request through.
func RateLimit(rdb redis.Cmdable, prefix string, max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUserID(c) != "" {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("%s:rate_limit:%s:%d", prefix, ip, time.Now().Unix())

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			rdb.PExpire(ctx, key, rateLimitWindow+time.Second)
		}

		if count > max {
			response.TooManyRequests(c, int(rateLimitWindow/time.Second))
			return
		}

		c.Next()
	}
}
