package connectors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout         = 15 * time.Second
	defaultRetryAttempts   = 4
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

type noRetryKey struct{}

// withoutRetry marks a request that must reach the broker at most once.
// Order placement is not idempotent: a resend after a lost reply opens a
// second position, so the caller reconciles instead.
func withoutRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRetryKey{}, true)
}

func retryDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(noRetryKey{}).(bool)
	return v
}

// unlessMarked vetoes retries for requests built with withoutRetry.
func unlessMarked(retryIf resty.RetryConditionFunc) resty.RetryConditionFunc {
	return func(r *resty.Response, err error) bool {
		if r == nil {
			// failed before reaching the wire, e.g. the rate gate gave up
			return false
		}
		if r.Request != nil && retryDisabled(r.Request.Context()) {
			return false
		}
		return retryIf(r, err)
	}
}

// newRestyClient builds a retrying client. Every attempt, retries included,
// waits on gate first.
func newRestyClient(baseURL string, timeout time.Duration, attempts int, gate *rateGate, retryIf resty.RetryConditionFunc) *resty.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(attempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(unlessMarked(retryIf)).
		OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return gate.wait(req.Context())
		})
}

// rateGate blocks callers until the broker's request budget allows another
// call. A nil gate never blocks.
type rateGate struct {
	limiter *rate.Limiter
}

func newRateGate(every time.Duration, burst int) *rateGate {
	return &rateGate{limiter: rate.NewLimiter(rate.Every(every), burst)}
}

func (g *rateGate) wait(ctx context.Context) error {
	if g == nil || g.limiter == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}

// flexString accepts ids that brokers send either as JSON strings or numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) String() string {
	return string(f)
}
