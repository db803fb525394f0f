package health

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

// Checker polls service liveness endpoints during health-gated startup.
type Checker struct {
	client *resty.Client
}

func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	c := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0) // retry cadence is owned by Poll, not the transport
	return &Checker{client: c}
}

// Check performs a single GET against url. Any response with a non-error
// status (<400) counts as healthy; the body is ignored.
func (c *Checker) Check(ctx context.Context, url string) bool {
	resp, err := c.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return false
	}
	return resp.StatusCode() < 400
}

// Poll checks url up to attempts times, sleeping interval between tries.
// It returns true on the first success, false when the attempt budget is
// exhausted or ctx is canceled.
func (c *Checker) Poll(ctx context.Context, url string, interval time.Duration, attempts int) bool {
	for i := 0; i < attempts; i++ {
		if c.Check(ctx, url) {
			return true
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return false
		}
	}
	return false
}
