package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	responseMetaKey = "response_meta"
	cacheHitKey     = "cache_hit"
)

// WithResponseMeta initialises response metadata storage on the request
// context and stamps the processing time on the way out.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
		meta := ensureMeta(c)
		if _, exists := meta["processing_time_ms"]; !exists {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
}

// SetCacheHit records cache hit information for the current response.
func SetCacheHit(c *gin.Context, hit bool) {
	ensureMeta(c)[cacheHitKey] = hit
}

// ExtractMeta returns the metadata map stored on the context.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	return nil
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if meta := ExtractMeta(c); meta != nil {
		return meta
	}
	newMeta := make(map[string]interface{})
	c.Set(responseMetaKey, newMeta)
	return newMeta
}

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(p []byte) (int, error) {
	w.buf.Write(p)
	return w.ResponseWriter.Write(p)
}

// CacheGET serves successful GET responses from redis for the given TTL,
// keyed by request URI. A nil client disables caching entirely.
func CacheGET(client *redis.Client, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if client == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := "httpcache:" + c.Request.URL.RequestURI()
		ctx, cancel := context.WithTimeout(c.Request.Context(), 200*time.Millisecond)
		raw, err := client.Get(ctx, key).Bytes()
		cancel()
		if err == nil {
			var cached cachedResponse
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				SetCacheHit(c, true)
				c.Data(cached.Status, cached.ContentType, cached.Body)
				c.Abort()
				return
			}
		}

		SetCacheHit(c, false)
		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		if c.Writer.Status() != http.StatusOK {
			return
		}
		payload, err := json.Marshal(cachedResponse{
			Status:      c.Writer.Status(),
			ContentType: c.Writer.Header().Get("Content-Type"),
			Body:        recorder.buf.Bytes(),
		})
		if err != nil {
			return
		}
		ctx, cancel = context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		if err := client.Set(ctx, key, payload, ttl).Err(); err != nil {
			logger.Debug("failed to store cached response", zap.String("key", key), zap.Error(err))
		}
	}
}
