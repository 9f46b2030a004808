package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const requestStartKey = "request_start"

// RequestTimer stamps the request start so handlers can report processing time.
func RequestTimer() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(requestStartKey, time.Now())
		c.Next()
	}
}

// CacheMeta builds response metadata for endpoints backed by the cache.
func CacheMeta(c *gin.Context, cacheHit bool) map[string]interface{} {
	meta := map[string]interface{}{"cache_hit": cacheHit}
	if value, ok := c.Get(requestStartKey); ok {
		if start, ok := value.(time.Time); ok {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
	return meta
}
