package libsys

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"time"
	"webopac/internal/components/assert"
	"webopac/internal/components/chrono"
	"webopac/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	pathLogin          = "/reader/login.php"
	pathScramble       = "/reader/ajax_ep.php"
	pathCaptcha        = "/reader/captcha.php"
	pathVerify         = "/reader/redr_verify.php"
	pathIdentity       = "/reader/redr_con.php"
	pathIdentityResult = "/reader/redr_con_result.php"
	pathInfo           = "/reader/redr_info.php"
	pathInfoRule       = "/reader/redr_info_rule.php"
	pathLoans          = "/reader/book_lst.php"
	pathHistory        = "/reader/book_hist.php"
	pathAccount        = "/reader/account.php"
	pathDebts          = "/reader/fine_pec.php"
	pathSearch         = "/opac/openlink.php"
	pathItem           = "/opac/item.php"
	pathRanking        = "/top/top_lend.php"
)

// size of the set of csrf tokens that were already submitted
const consumedChallenges = 4096

var tracer = otel.Tracer("webopac/libsys")
var meter = otel.Meter("webopac/libsys")
var outcomeCounter, _ = meter.Int64Counter(
	"libsys.outcomes",
	metric.WithDescription("public operation outcomes by result code"),
)

type Options struct {
	BaseUrl string
	// Timeout bounds every single round trip.
	Timeout          time.Duration
	CloudflareBypass bool
	DumpMessages     bool
	// UserAgent defaults to a desktop chrome.
	UserAgent string
	// Transport defaults to a clone of http.DefaultTransport.
	Transport http.RoundTripper
}

// Client talks to one portal. It holds no session state, so one Client can
// serve any number of sessions concurrently.
type Client struct {
	baseUrl   *url.URL
	opts      Options
	transport http.RoundTripper
	consumed  *lru.Cache[string, struct{}]
	clock     chrono.API
	tel       telemetry.API
}

func NewClient(opts Options, clock chrono.API, tel telemetry.API) (*Client, error) {
	assert.NotNil(clock)
	assert.NotNil(tel)

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseUrl.Scheme == "" || baseUrl.Host == "" {
		return nil, fmt.Errorf("base url must be absolute, got %q", opts.BaseUrl)
	}
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %v", opts.Timeout)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = userAgent
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	if opts.CloudflareBypass {
		transport = cloudflarebp.AddCloudFlareByPass(transport)
	}

	consumed, err := lru.New[string, struct{}](consumedChallenges)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseUrl:   baseUrl,
		opts:      opts,
		transport: transport,
		consumed:  consumed,
		clock:     clock,
		tel:       telemetry.NewScopedAPI("libsys", tel),
	}, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseUrl.ResolveReference(&url.URL{Path: path}).String()
}

// operation names a public operation for reports and for the messages of its
// envelope ("<title>成功", "<title>超时", ...).
type operation struct {
	report string
	title  string
}

var (
	opChallenge = operation{report: "auth.issue-challenge", title: "登录"}
	opVerify    = operation{report: "auth.verify", title: "验证码登录"}
	opIdentity  = operation{report: "auth.complete-identity", title: "身份认证"}
	opProfile   = operation{report: "reader.profile", title: "获取个人信息"}
	opLoans     = operation{report: "reader.loans", title: "获取借阅列表"}
	opHistory   = operation{report: "reader.history", title: "获取历史借阅"}
	opBills     = operation{report: "reader.bills", title: "获取账目清单"}
	opDebts     = operation{report: "reader.debts", title: "获取欠款信息"}
	opRanking   = operation{report: "catalog.ranking", title: "获取热门借阅"}
	opSearch    = operation{report: "catalog.search", title: "搜索图书"}
	opDetail    = operation{report: "catalog.detail", title: "获取图书详情"}
)

func (op operation) succeeded() string {
	return op.title + "成功"
}

// run executes one public operation and folds whatever happens into its
// envelope. Nothing escapes: errors are classified and panics are recovered
// as unclassified failures.
func run[T any](ctx context.Context, c *Client, op operation, fn func(ctx context.Context) (Result[T], error)) (result Result[T]) {
	ctx, span := tracer.Start(ctx, op.report)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			c.tel.ReportBroken(op.report, err, string(debug.Stack()))
			result = failed[T](classify(op, err))
		}

		span.SetAttributes(attribute.Int("libsys.code", int(result.Code)))
		if !result.OK() {
			span.SetStatus(codes.Error, result.Message)
		}
		outcomeCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", op.report),
			attribute.String("code", result.Code.String()),
		))
	}()

	result, err := fn(ctx)
	if err == nil {
		return result
	}

	f := classify(op, err)
	switch {
	case f.Unclassified:
		c.tel.ReportBroken(op.report, err)
	case f.Code == CodeConnection || f.Code == CodeTimeout:
		c.tel.ReportWarning(op.report, err)
	}
	if f.Cause != nil {
		span.RecordError(f.Cause)
	}
	return failed[T](f)
}
