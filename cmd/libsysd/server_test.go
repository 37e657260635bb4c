package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"webopac/internal/components/chrono"
	"webopac/internal/components/telemetry"
	"webopac/internal/libsys"
	"webopac/internal/sessionstore"

	"github.com/stretchr/testify/require"
)

const rankingPage = `<table class="table_line">
<tr><th>排名</th></tr>
<tr><td>1</td><td><a href="../opac/item.php?marc_no=0000000001">三体</a></td><td>刘慈欣</td><td>重庆出版社</td><td>I247.5/123</td><td>10</td><td>120</td><td>12</td></tr>
</table>`

const expiredPage = `<h5 class="box_bgcolor">登录我的图书馆</h5>`

var now = time.Date(2026, time.October, 16, 9, 30, 0, 0, time.UTC)

type envelope struct {
	Code    libsys.Code     `json:"code"`
	Message string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

func setup(t testing.TB) (*httptest.Server, sessionstore.Store) {
	portal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/top/top_lend.php":
			w.Write([]byte(rankingPage))
		default:
			w.Write([]byte(expiredPage))
		}
	}))
	t.Cleanup(portal.Close)

	clock := chrono.FixedImpl{At: now}
	tel := &telemetry.Recorder{}
	client, err := libsys.NewClient(libsys.Options{BaseUrl: portal.URL, Timeout: time.Second}, clock, tel)
	require.NoError(t, err)

	db, err := sessionstore.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := sessionstore.NewStore(db, clock)

	mux := http.NewServeMux()
	NewServer(client, store, tel).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server, store
}

func call(t testing.TB, method, url string, body any) (int, envelope) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var out envelope
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res.StatusCode, out
}

func TestRanking(t *testing.T) {
	server, _ := setup(t)

	status, res := call(t, http.MethodGet, server.URL+"/ranking", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, libsys.CodeSuccess, res.Code)

	var ranking libsys.Ranking
	require.NoError(t, json.Unmarshal(res.Data, &ranking))
	require.Equal(t, now.Unix(), ranking.Updated)
	require.Equal(t, "三体", ranking.Books[0].Title)
}

func TestSessionEndpoints(t *testing.T) {
	server, store := setup(t)
	ctx := context.Background()

	status, res := call(t, http.MethodPost, server.URL+"/loans", nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, libsys.CodeUnexpected, res.Code)

	status, _ = call(t, http.MethodPost, server.URL+"/loans", map[string]string{"account": "unknown"})
	require.Equal(t, http.StatusBadRequest, status)

	require.NoError(t, store.Save(ctx, "alice", libsys.ResumeSession(map[string]string{"PHPSESSID": "old"})))
	status, res = call(t, http.MethodPost, server.URL+"/loans", map[string]string{"account": "alice"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, libsys.CodeSessionExpired, res.Code)
	require.Nil(t, res.Data)

	_, err := store.Load(ctx, "alice")
	require.ErrorIs(t, err, sessionstore.ErrNotFound)

	inline := libsys.ResumeSession(map[string]string{"PHPSESSID": "old"})
	_, res = call(t, http.MethodPost, server.URL+"/profile", map[string]any{"session": inline})
	require.Equal(t, libsys.CodeSessionExpired, res.Code)
}

func TestSearchSuggestsField(t *testing.T) {
	server, _ := setup(t)

	status, res := call(t, http.MethodPost, server.URL+"/search", map[string]any{"type": "titel", "content": "Go"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, libsys.CodeUnexpected, res.Code)
	require.Contains(t, res.Message, `"title"`)
}

func TestVerifyWithoutChallenge(t *testing.T) {
	server, _ := setup(t)

	_, res := call(t, http.MethodPost, server.URL+"/verify", map[string]any{
		"number":   "2021000001",
		"password": "Passw0rd",
		"captcha":  "abcd",
		"account":  "alice",
	})
	require.Equal(t, libsys.CodeUnexpected, res.Code)
}
