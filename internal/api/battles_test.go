package api

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"battle-tracker/internal/config"
	"battle-tracker/internal/constants"
	"battle-tracker/internal/domain"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"golang.org/x/time/rate"
)

func newTestClient(t *testing.T, handler fasthttp.RequestHandler, timeout time.Duration) *BattleClient {
	t.Helper()

	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: handler}
	go func() {
		_ = srv.Serve(ln)
	}()
	t.Cleanup(func() {
		_ = ln.Close()
	})

	return &BattleClient{
		endpoint: "http://battles.test",
		timeout:  timeout,
		client: &fasthttp.Client{
			Dial: func(addr string) (net.Conn, error) {
				return ln.Dial()
			},
		},
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

func TestFetchOutcomes(t *testing.T) {
	var gotPath, gotAgent string
	client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		gotPath = string(ctx.Path())
		gotAgent = string(ctx.UserAgent())
		switch gotPath {
		case "/100":
			ctx.SetBodyString(`<BATTLE time="1700000000"><USER rlogin_utf8="Alice"/></BATTLE>`)
		case "/101":
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		case "/102":
			ctx.SetBodyString("<html>maintenance</html>")
		case "/103":
			ctx.SetStatusCode(fasthttp.StatusBadGateway)
		}
	}, time.Second)

	ctx := context.Background()

	res := client.Fetch(ctx, 100)
	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	require.Contains(t, res.Content, `rlogin_utf8="Alice"`)
	require.Equal(t, "/100", gotPath)
	require.Equal(t, "TimeZero Shell (v. 7.1.2.6)", gotAgent)

	res = client.Fetch(ctx, 101)
	require.Equal(t, domain.OutcomeNotFound, res.Outcome)
	require.Empty(t, res.Content)

	res = client.Fetch(ctx, 102)
	require.Equal(t, domain.OutcomeInvalidContent, res.Outcome)
	require.Empty(t, res.Content)

	res = client.Fetch(ctx, 103)
	require.Equal(t, domain.OutcomeHTTPError, res.Outcome)
	require.Equal(t, fasthttp.StatusBadGateway, res.StatusCode)
	require.Error(t, res.Err)
}

func TestFetchFollowsRedirects(t *testing.T) {
	var hops []string
	client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		hops = append(hops, string(ctx.Path()))
		switch string(ctx.Path()) {
		case "/104":
			ctx.Redirect("/100", fasthttp.StatusFound)
		case "/105":
			ctx.Redirect("/105", fasthttp.StatusMovedPermanently)
		case "/100":
			ctx.SetBodyString(`<BATTLE time="1700000000"><USER rlogin_utf8="Alice"/></BATTLE>`)
		}
	}, time.Second)

	res := client.Fetch(context.Background(), 104)
	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	require.Equal(t, fasthttp.StatusOK, res.StatusCode)
	require.Contains(t, res.Content, `rlogin_utf8="Alice"`)
	require.Equal(t, []string{"/104", "/100"}, hops)

	hops = nil
	res = client.Fetch(context.Background(), 105)
	require.Equal(t, domain.OutcomeHTTPError, res.Outcome)
	require.Equal(t, fasthttp.StatusMovedPermanently, res.StatusCode)
	require.Error(t, res.Err)
	require.Len(t, hops, constants.MaxRedirects+1)
}

func TestFetchTimeout(t *testing.T) {
	client := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		time.Sleep(300 * time.Millisecond)
		ctx.SetBodyString("<BATTLE/>")
	}, 30*time.Millisecond)

	res := client.Fetch(context.Background(), 7)
	require.Equal(t, domain.OutcomeTimeout, res.Outcome)
	require.True(t, res.Outcome.Transient())
}

func TestFetchConnectionError(t *testing.T) {
	client := &BattleClient{
		endpoint: "http://battles.test",
		timeout:  time.Second,
		client: &fasthttp.Client{
			Dial: func(addr string) (net.Conn, error) {
				return nil, errors.New("connection refused")
			},
		},
		limiter: rate.NewLimiter(rate.Inf, 1),
	}

	res := client.Fetch(context.Background(), 7)
	require.Equal(t, domain.OutcomeConnectionError, res.Outcome)
	require.Error(t, res.Err)
}

func TestFetchRejectsNonPositiveID(t *testing.T) {
	client := NewBattleClient(config.Default())
	res := client.Fetch(context.Background(), 0)
	require.Equal(t, domain.OutcomeError, res.Outcome)
}

func TestURL(t *testing.T) {
	cfg := config.Default()
	cfg.BattleEndpoint = "http://example.test/battles/"
	client := NewBattleClient(cfg)
	require.Equal(t, "http://example.test/battles/42", client.URL(42))
}
