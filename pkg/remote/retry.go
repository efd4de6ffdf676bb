package remote

import (
	"context"
	"io"
	"net/http"
	"time"
)

// retryBackoff is the delay before the second attempt; it doubles after that.
var retryBackoff = time.Second

// retryDo sends a bodiless request up to maxAttempts times. Network errors,
// 408, 429 and 5xx responses are retried after an exponential backoff; any
// other response is returned as is. When attempts run out the last response
// or error is returned. A done request context ends the wait early.
func retryDo(client *http.Client, req *http.Request, maxAttempts int) (*http.Response, error) {
	maxAttempts = max(maxAttempts, 1)
	ctx := req.Context()
	backoff := retryBackoff

	for attempt := 1; ; attempt++ {
		resp, err := client.Do(req)
		last := attempt == maxAttempts || ctx.Err() != nil
		switch {
		case err != nil && last:
			return nil, err
		case err == nil && (last || !isRetryableStatus(resp.StatusCode)):
			return resp, nil
		case err == nil:
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		if err := sleepCtx(ctx, backoff); err != nil {
			return nil, err
		}
		backoff *= 2
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRetryableStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= 500
}
