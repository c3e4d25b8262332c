package utils

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/kataras/iris/v12"
	log "github.com/sirupsen/logrus"

	"house-rent-server/storage"
)

// RateLimit returns a fixed-window per-IP limiter backed by Redis, applied
// to the auth and OTP endpoints. Fails open when Redis is unavailable.
func RateLimit(name string, max int, window time.Duration) iris.Handler {
	return func(ctx iris.Context) {
		key := fmt.Sprintf("ratelimit:%s:%s", name, clientIP(ctx))

		count, err := storage.Redis.Incr(context.Background(), key).Result()
		if err != nil {
			log.WithError(err).Warn("rate limiter unavailable, admitting request")
			ctx.Next()
			return
		}
		if count == 1 {
			storage.Redis.Expire(context.Background(), key, window)
		}

		if count > int64(max) {
			JSONError(ctx, iris.StatusTooManyRequests, "rate_limited",
				"Too many requests. Please slow down.")
			return
		}
		ctx.Next()
	}
}

func clientIP(ctx iris.Context) string {
	if ip := ctx.GetHeader("X-Forwarded-For"); ip != "" {
		return ip
	}
	ip, _, _ := net.SplitHostPort(ctx.RemoteAddr())
	return ip
}
