package requestid

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// Header carries the correlation id between services.
	Header     = "X-Request-ID"
	contextKey = "request_id"
)

// Middleware tags every request with a correlation id, reusing the caller's
// X-Request-ID when present so traces survive proxy hops.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(Header)
		if id == "" {
			id = newID()
		}
		c.Set(contextKey, id)
		c.Writer.Header().Set(Header, id)
		c.Next()
	}
}

// Value extracts the correlation id from the gin context, or "" when the
// middleware did not run.
func Value(c *gin.Context) string {
	v, ok := c.Get(contextKey)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}

func newID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// rand failing is effectively fatal elsewhere; a timestamp id keeps
		// the request serviceable.
		return "req-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(buf)
}
