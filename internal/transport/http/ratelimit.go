package http

import "golang.org/x/time/rate"

// rateLimiter throttles inbound frames of one connection.
type rateLimiter struct {
	lim *rate.Limiter
}

// newRateLimiter allows perSecond frames with the given burst. perSecond <= 0 disables limiting.
func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if perSecond <= 0 {
		return &rateLimiter{}
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiter{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.lim == nil {
		return true
	}
	return r.lim.Allow()
}
