package libsys

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"webopac/internal/components/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html/charset"
)

const (
	userAgent    = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/56.0.2924.87 Safari/537.36"
	acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3"
)

// cookies can be scoped to any of these paths, all of them are harvested
var cookieScopes = []string{"/", "/reader/", "/opac/", "/top/"}

// errMalformed marks a response that does not have the shape a page is
// expected to have. It is classified like a connection failure.
var errMalformed = errors.New("malformed portal response")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errMalformed, fmt.Sprintf(format, args...))
}

// exchange is the http state of one public operation: a resty client with a
// cookie jar seeded from the caller's session.
type exchange struct {
	base *url.URL
	http *resty.Client
	jar  *cookiejar.Jar
}

func (c *Client) newExchange(session Session, followRedirects bool) (*exchange, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	seeded := make([]*http.Cookie, 0, len(session.Cookies))
	for name, value := range session.Cookies {
		seeded = append(seeded, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	jar.SetCookies(c.baseUrl, seeded)

	httpClient := resty.New()
	httpClient.SetTransport(c.transport)
	httpClient.SetBaseURL(c.baseUrl.String())
	httpClient.SetCookieJar(jar)
	httpClient.SetTimeout(c.opts.Timeout)
	httpClient.SetHeaders(map[string]string{
		"user-agent": c.opts.UserAgent,
		"accept":     acceptHeader,
		"referer":    c.endpoint(pathLogin),
	})
	if followRedirects {
		httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(c.baseUrl.Hostname()))
	} else {
		httpClient.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))
	}

	telemetry.InstrumentResty(httpClient, c.tel, telemetry.RestyOptions{
		TracerName:   "webopac/libsys/http",
		DumpMessages: c.opts.DumpMessages,
	})

	return &exchange{base: c.baseUrl, http: httpClient, jar: jar}, nil
}

func checkStatus(method, path string, res *resty.Response) error {
	if res.StatusCode() >= 500 {
		return malformed("%s %s: status %s", method, path, res.Status())
	}
	return nil
}

func (e *exchange) get(ctx context.Context, path string, query map[string]string) (*resty.Response, error) {
	res, err := e.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return res, checkStatus("GET", path, res)
}

func (e *exchange) post(ctx context.Context, path string, form map[string]string) (*resty.Response, error) {
	res, err := e.http.R().
		SetContext(ctx).
		SetFormData(form).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	return res, checkStatus("POST", path, res)
}

// body decodes the response to utf-8 following its content type. Older
// deployments of the portal serve gbk.
func body(res *resty.Response) io.Reader {
	reader, err := charset.NewReader(bytes.NewReader(res.Body()), res.Header().Get("Content-Type"))
	if err != nil {
		return bytes.NewReader(res.Body())
	}
	return reader
}

func bodyText(res *resty.Response) (string, error) {
	content, err := io.ReadAll(body(res))
	if err != nil {
		return "", fmt.Errorf("%w: decode %s: %w", errMalformed, res.Request.URL, err)
	}
	return string(content), nil
}

func parseDocument(res *resty.Response) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(body(res))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", errMalformed, res.Request.URL, err)
	}
	return doc, nil
}

func (e *exchange) getDocument(ctx context.Context, path string, query map[string]string) (*goquery.Document, error) {
	res, err := e.get(ctx, path, query)
	if err != nil {
		return nil, err
	}
	return parseDocument(res)
}

func (e *exchange) postDocument(ctx context.Context, path string, form map[string]string) (*goquery.Document, error) {
	res, err := e.post(ctx, path, form)
	if err != nil {
		return nil, err
	}
	return parseDocument(res)
}

// cookies returns every cookie the jar holds for the portal.
func (e *exchange) cookies() map[string]string {
	out := map[string]string{}
	for _, scope := range cookieScopes {
		for _, cookie := range e.jar.Cookies(e.base.ResolveReference(&url.URL{Path: scope})) {
			out[cookie.Name] = cookie.Value
		}
	}
	return out
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnection(err error) bool {
	if errors.Is(err, errMalformed) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// classify turns any error into a Failure. Conditions already classified pass
// through, transport conditions become timeout or connection failures and
// everything else becomes an unclassified failure carrying the original error.
func classify(op operation, err error) *Failure {
	if f, ok := AsFailure(err); ok {
		return f
	}
	if isTimeout(err) {
		return &Failure{Code: CodeTimeout, Message: op.title + "超时", Cause: err}
	}
	if isConnection(err) {
		return &Failure{Code: CodeConnection, Message: connectionMessage, Cause: err}
	}
	return &Failure{
		Code:         CodeUnexpected,
		Message:      fmt.Sprintf("%s时未记录的错误：%s", op.title, err.Error()),
		Unclassified: true,
		Cause:        err,
	}
}
