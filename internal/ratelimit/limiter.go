// Package ratelimit implements the relay's rate limiting: a per-IP guard on
// the WebSocket upgrade endpoint, a per-channel restore-attempt limiter, and
// a per-channel wire-frame limiter.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/quizrelay/relay/internal/config"
	"github.com/quizrelay/relay/internal/logging"
	"github.com/quizrelay/relay/internal/metrics"
	"go.uber.org/zap"
)

// ConnectLimiter enforces RATE_LIMIT_WS_CONNECT_IP on the /ws upgrade route.
type ConnectLimiter struct {
	wsIP *limiter.Limiter
}

// NewConnectLimiter builds the per-IP connection attempt limiter.
func NewConnectLimiter(cfg *config.Config) (*ConnectLimiter, error) {
	rate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsConnectPerIP)
	if err != nil {
		return nil, fmt.Errorf("invalid ws connect rate: %w", err)
	}
	store := memory.NewStore()
	return &ConnectLimiter{wsIP: limiter.New(store, rate)}, nil
}

// Middleware aborts the upgrade request with 429 once an IP has opened too
// many connections within the configured window.
func (cl *ConnectLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ip := c.ClientIP()

		lc, err := cl.wsIP.Get(ctx, ip)
		if err != nil {
			logging.Error(ctx, "ws connect limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		if lc.Reached {
			metrics.RateLimitExceeded.WithLabelValues("ws_connect", "reject").Inc()
			c.Header("Retry-After", strconv.FormatInt(lc.Reset-time.Now().Unix(), 10))
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}

		c.Next()
	}
}

// RestoreLimiter enforces RESTORE_MIN_INTERVAL: at most one restore_room
// attempt per channel within the window, regardless of which room (if any)
// the attempt targets.
type RestoreLimiter struct {
	limiter *limiter.Limiter
}

// NewRestoreLimiter builds the per-channel restore-attempt limiter.
func NewRestoreLimiter(cfg *config.Config) (*RestoreLimiter, error) {
	rate, err := limiter.NewRateFromFormatted(cfg.RestoreLimitWindow)
	if err != nil {
		return nil, fmt.Errorf("invalid restore rate: %w", err)
	}
	store := memory.NewStore()
	return &RestoreLimiter{limiter: limiter.New(store, rate)}, nil
}

// Allow reports whether channelID may attempt a restore_room right now.
func (rl *RestoreLimiter) Allow(ctx context.Context, channelID string) bool {
	lc, err := rl.limiter.Get(ctx, "restore:"+channelID)
	if err != nil {
		logging.Error(ctx, "restore limiter store failed", zap.Error(err))
		return true // fail open: availability over strictness for a non-authenticated relay
	}
	if lc.Reached {
		metrics.RateLimitExceeded.WithLabelValues("restore", "reject").Inc()
		return false
	}
	return true
}

// FrameLimiter implements the per-channel message-frame budget described by
// the wire protocol: the first 20 frames in a one-second window are
// processed, the frame that crosses 20 earns a single warning, and the frame
// that crosses 60 closes the channel. Windows are fixed, not rolling: a new
// window starts with the first frame at least one second after the current
// window began, and frames are never counted across two windows, so up to
// twice the threshold can pass within one second that straddles a window
// boundary. A fixed-size counting window is used
// instead of a continuously-refilling token bucket (compare
// internal/ratelimit against an IP-bucket limiter such as a simple
// token-bucket design) because the exact per-window counts the protocol
// promises are easiest to reason about against a window that resets as a
// whole, rather than one that leaks allowance back continuously.
type FrameLimiter struct {
	mu            sync.Mutex
	windowStart   time.Time
	count         int
	warned        bool
	softThreshold int
	hardThreshold int
}

// NewFrameLimiter returns a limiter enforcing soft/hard frame thresholds
// within each fixed one-second window.
func NewFrameLimiter(soft, hard int) *FrameLimiter {
	return &FrameLimiter{softThreshold: soft, hardThreshold: hard}
}

// Verdict describes what a channel should do with an inbound frame.
type Verdict int

const (
	// VerdictAllow processes the frame normally.
	VerdictAllow Verdict = iota
	// VerdictWarn processes no further frames this window and sends a
	// single rate_limit error frame back to the channel.
	VerdictWarn
	// VerdictClose forcibly closes the channel for sustained abuse.
	VerdictClose
	// VerdictDrop silently discards the frame: past the warning but not
	// yet past the hard threshold.
	VerdictDrop
)

// Admit records one inbound frame and returns how the caller should react.
func (fl *FrameLimiter) Admit() Verdict {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	now := time.Now()
	if now.Sub(fl.windowStart) >= time.Second {
		fl.windowStart = now
		fl.count = 0
		fl.warned = false
	}
	fl.count++

	if fl.count > fl.hardThreshold {
		return VerdictClose
	}
	if fl.count > fl.softThreshold {
		if !fl.warned {
			fl.warned = true
			return VerdictWarn
		}
		return VerdictDrop
	}
	return VerdictAllow
}
