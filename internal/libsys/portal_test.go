package libsys

import (
	"embed"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
	"webopac/internal/components/chrono"
	"webopac/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

//go:embed testdata
var fixtures embed.FS

const (
	testSca          = "zyxwvutsrqponmlkjihgfedcbaZYXWVUTSRQPONMLKJIHGFEDCBA9876543210"
	cookieName       = "PHPSESSID"
	cookieAnonymous  = "anonymous"
	cookiePending    = "pending"
	cookieActive     = "active"
	cookieReset      = "reset"
	testReaderName   = "王小明"
	testAccount      = "2021000001"
	testPassword     = "Passw0rd"
	testNewPassword  = "NewPassw0rd"
	testCaptchaReply = "8k3m"
)

var testNow = time.Date(2026, time.October, 16, 9, 30, 0, 0, time.FixedZone("CST", 8*3600))

func fixture(t testing.TB, name string) []byte {
	content, err := fixtures.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return content
}

// fakePortal serves the fixtures the way the real portal would, keyed on
// the session cookie.
type fakePortal struct {
	t      testing.TB
	server *httptest.Server

	mutex sync.Mutex
	hits  map[string]int
	forms map[string]url.Values
	// verifyFixture is what redr_verify.php answers with, "" for a
	// successful login and "identity" for a redirect to redr_con.php.
	verifyFixture string
	routes        map[string]http.HandlerFunc
}

func newFakePortal(t testing.TB) *fakePortal {
	p := &fakePortal{
		t:     t,
		hits:  map[string]int{},
		forms: map[string]url.Values{},
	}
	p.routes = map[string]http.HandlerFunc{
		pathLogin: func(w http.ResponseWriter, r *http.Request) {
			http.SetCookie(w, &http.Cookie{Name: cookieName, Value: cookieAnonymous, Path: "/"})
			p.write(w, "login.html")
		},
		pathScramble: func(w http.ResponseWriter, r *http.Request) {
			p.write(w, "ajax_ep.js")
		},
		pathCaptcha: func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			p.write(w, "captcha.png")
		},
		pathVerify: func(w http.ResponseWriter, r *http.Request) {
			if p.cookie(r) != cookieAnonymous {
				p.write(w, "login.html")
				return
			}
			p.mutex.Lock()
			outcome := p.verifyFixture
			p.mutex.Unlock()

			switch outcome {
			case "":
				http.SetCookie(w, &http.Cookie{Name: cookieName, Value: cookieActive, Path: "/"})
				w.Header().Set("Location", "redr_info.php")
				w.WriteHeader(http.StatusFound)
			case "identity":
				http.SetCookie(w, &http.Cookie{Name: cookieName, Value: cookiePending, Path: "/"})
				w.Header().Set("Location", "redr_con.php")
				w.WriteHeader(http.StatusFound)
			default:
				p.write(w, outcome)
			}
		},
		pathIdentity: func(w http.ResponseWriter, r *http.Request) {
			if p.cookie(r) != cookiePending {
				p.write(w, "expired.html")
				return
			}
			p.write(w, "identity.html")
		},
		pathIdentityResult: func(w http.ResponseWriter, r *http.Request) {
			if p.cookie(r) != cookiePending {
				p.write(w, "expired.html")
				return
			}
			if r.PostForm.Get("name") != testReaderName || r.PostForm.Get("csrf_token") != "identity-csrf-1" {
				p.write(w, "identity_mismatch.html")
				return
			}
			http.SetCookie(w, &http.Cookie{Name: cookieName, Value: cookieReset, Path: "/"})
			p.write(w, "identity_done.html")
		},
		pathInfo:     p.authenticated("redr_info.html"),
		pathInfoRule: p.authenticated("redr_info_rule.html"),
		pathLoans:    p.authenticated("book_lst.html"),
		pathHistory:  p.authenticated("book_hist.html"),
		pathAccount:  p.authenticated("account.html"),
		pathDebts:    p.authenticated("fine_pec.html"),
		pathSearch: func(w http.ResponseWriter, r *http.Request) {
			p.write(w, "openlink.html")
		},
		pathItem: func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("marc_no") != "0000123456" {
				w.Write([]byte("<html><body><h2>无此记录</h2></body></html>"))
				return
			}
			p.write(w, "item.html")
		},
		pathRanking: func(w http.ResponseWriter, r *http.Request) {
			p.write(w, "top_lend.html")
		},
	}

	p.server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePortal) serve(w http.ResponseWriter, r *http.Request) {
	err := r.ParseForm()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p.mutex.Lock()
	p.hits[r.URL.Path]++
	if r.Method == http.MethodPost {
		p.forms[r.URL.Path] = r.PostForm
	}
	handler, ok := p.routes[r.URL.Path]
	p.mutex.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	handler(w, r)
}

func (p *fakePortal) write(w http.ResponseWriter, name string) {
	content, err := fixtures.ReadFile("testdata/" + name)
	if err != nil {
		p.t.Errorf("missing fixture %s", name)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	w.Write(content)
}

func (p *fakePortal) cookie(r *http.Request) string {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (p *fakePortal) authenticated(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p.cookie(r) != cookieActive {
			p.write(w, "expired.html")
			return
		}
		p.write(w, name)
	}
}

func (p *fakePortal) route(path string, handler http.HandlerFunc) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.routes[path] = handler
}

func (p *fakePortal) serveFixture(path, name string) {
	p.route(path, func(w http.ResponseWriter, r *http.Request) {
		p.write(w, name)
	})
}

func (p *fakePortal) setVerifyFixture(name string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.verifyFixture = name
}

func (p *fakePortal) hitCount(path string) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.hits[path]
}

func (p *fakePortal) lastForm(path string) url.Values {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.forms[path]
}

func newTestClient(t testing.TB, baseUrl string, timeout time.Duration) (*Client, *telemetry.Recorder) {
	tel := &telemetry.Recorder{}
	client, err := NewClient(Options{
		BaseUrl: baseUrl,
		Timeout: timeout,
	}, chrono.FixedImpl{At: testNow}, tel)
	require.NoError(t, err)
	return client, tel
}

func activeSession() Session {
	return ResumeSession(map[string]string{cookieName: cookieActive})
}
