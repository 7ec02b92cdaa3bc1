package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"battle-tracker/internal/config"
	"battle-tracker/internal/constants"
	"battle-tracker/internal/domain"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

// BattleClient retrieves raw battle records, one id per call.
type BattleClient struct {
	endpoint string
	timeout  time.Duration
	client   *fasthttp.Client
	limiter  *rate.Limiter
}

type FetchResult struct {
	BattleID   int64
	Outcome    domain.FetchOutcome
	StatusCode int
	Content    string
	Err        error
}

func NewBattleClient(cfg *config.Config) *BattleClient {
	limit := rate.Inf
	if cfg.FetchInterval > 0 {
		limit = rate.Every(cfg.FetchInterval)
	}
	return &BattleClient{
		endpoint: strings.TrimRight(cfg.BattleEndpoint, "/"),
		timeout:  cfg.FetchTimeout,
		client: &fasthttp.Client{
			MaxConnsPerHost:     4,
			ReadTimeout:         cfg.FetchTimeout,
			WriteTimeout:        cfg.FetchTimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (c *BattleClient) URL(battleID int64) string {
	return fmt.Sprintf("%s/%d", c.endpoint, battleID)
}

// Fetch performs a single request with no retry. Network conditions are
// reported through the outcome; Err carries the underlying cause if any.
func (c *BattleClient) Fetch(ctx context.Context, battleID int64) (result FetchResult) {
	result.BattleID = battleID

	defer func() {
		if r := recover(); r != nil {
			result = FetchResult{
				BattleID: battleID,
				Outcome:  domain.OutcomeError,
				Err:      fmt.Errorf("fetch panicked: %v", r),
			}
		}
	}()

	if battleID <= 0 {
		result.Outcome = domain.OutcomeError
		result.Err = fmt.Errorf("invalid battle id %d", battleID)
		return result
	}

	if err := c.limiter.Wait(ctx); err != nil {
		result.Outcome = domain.OutcomeError
		result.Err = fmt.Errorf("failed to wait for request slot: %w", err)
		return result
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.URL(battleID))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", constants.BattleAccept)
	req.Header.Set("User-Agent", constants.BattleUserAgent)
	req.Header.Set("Pragma", "no-cache")

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	// DoDeadline never follows redirects; hops share the one deadline and a
	// redirect left over after MaxRedirects is reported as an HTTP error
	for hops := 0; ; hops++ {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			result.Outcome = classifyTransportError(err)
			result.Err = err
			return result
		}
		if hops >= constants.MaxRedirects || !fasthttp.StatusCodeIsRedirect(resp.StatusCode()) {
			break
		}
		location := resp.Header.Peek(fasthttp.HeaderLocation)
		if len(location) == 0 {
			break
		}
		req.URI().UpdateBytes(location)
	}

	result.StatusCode = resp.StatusCode()
	switch result.StatusCode {
	case fasthttp.StatusOK:
	case fasthttp.StatusNotFound:
		result.Outcome = domain.OutcomeNotFound
		return result
	default:
		result.Outcome = domain.OutcomeHTTPError
		result.Err = fmt.Errorf("API error: %d", result.StatusCode)
		return result
	}

	// body is only valid until the response is released
	content := strings.ToValidUTF8(string(resp.Body()), "")
	if !strings.Contains(content, constants.BattleStartMarker) {
		result.Outcome = domain.OutcomeInvalidContent
		return result
	}

	result.Outcome = domain.OutcomeSuccess
	result.Content = content
	return result
}

func classifyTransportError(err error) domain.FetchOutcome {
	if errors.Is(err, fasthttp.ErrTimeout) ||
		errors.Is(err, fasthttp.ErrDialTimeout) ||
		errors.Is(err, context.DeadlineExceeded) {
		return domain.OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.OutcomeTimeout
	}
	return domain.OutcomeConnectionError
}
