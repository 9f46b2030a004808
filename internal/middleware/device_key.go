package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
	"github.com/noah-isme/school-attendance-api/pkg/response"
)

// DeviceKeyHeader carries the shared secret of an NFC reader station.
const DeviceKeyHeader = "X-Device-Key"

// DeviceKey admits requests from reader stations presenting one of the configured keys.
// With no keys configured every request is rejected.
func DeviceKey(keys []string) gin.HandlerFunc {
	allowed := make([][]byte, 0, len(keys))
	for _, key := range keys {
		if key = strings.TrimSpace(key); key != "" {
			allowed = append(allowed, []byte(key))
		}
	}
	return func(c *gin.Context) {
		presented := []byte(strings.TrimSpace(c.GetHeader(DeviceKeyHeader)))
		if len(presented) == 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "device key required"))
			c.Abort()
			return
		}
		for _, key := range allowed {
			if subtle.ConstantTimeCompare(presented, key) == 1 {
				c.Next()
				return
			}
		}
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "unknown device key"))
		c.Abort()
	}
}
