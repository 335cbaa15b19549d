// internal/api/middleware.go
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Corphon/HealthScriptMCP/internal/utils"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
	visitorTTL      = time.Hour
)

// RequestID 为每个请求分配 ID，客户端提供时沿用
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// AccessLog 用 zap 记录访问日志并上报请求指标
func AccessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		utils.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status), elapsed)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(requestIDKey)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("请求失败", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("请求被拒绝", fields...)
		default:
			logger.Info("请求完成", fields...)
		}
	}
}

// RateLimiter 按客户端 IP 的令牌桶限流
type RateLimiter struct {
	visitors *gocache.Cache
	limit    rate.Limit
	burst    int
}

// NewRateLimiter 每秒 perSecond 个请求，突发 burst；perSecond <= 0 时不限流
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		visitors: gocache.New(visitorTTL, visitorTTL),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	if v, ok := rl.visitors.Get(key); ok {
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(rl.limit, rl.burst)
	if err := rl.visitors.Add(key, limiter, gocache.DefaultExpiration); err != nil {
		// 并发创建时使用先放入的
		if v, ok := rl.visitors.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

// Middleware 超出限额时返回 429
func (rl *RateLimiter) Middleware(response *ResponseHelper) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit <= 0 {
			c.Next()
			return
		}

		key := c.ClientIP()
		limiter := rl.limiterFor(key)
		rl.visitors.SetDefault(key, limiter)

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%g", float64(rl.limit)))
		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			response.Error(c, http.StatusTooManyRequests, ErrorRateLimited, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}
		c.Next()
	}
}
