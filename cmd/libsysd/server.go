package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"webopac/internal/components/telemetry"
	"webopac/internal/libsys"
	"webopac/internal/sessionstore"
)

const report_handler = "handler"

// Server exposes every portal operation as a json endpoint answering with
// the result envelope. Callers either pass their session along or name an
// account whose session the server keeps.
type Server struct {
	client *libsys.Client
	store  sessionstore.Store
	tel    telemetry.API
}

func NewServer(client *libsys.Client, store sessionstore.Store, tel telemetry.API) Server {
	return Server{
		client: client,
		store:  store,
		tel:    telemetry.NewScopedAPI("libsysd", tel),
	}
}

func (s Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /challenge", s.challenge)
	mux.HandleFunc("POST /verify", s.verify)
	mux.HandleFunc("POST /identity", s.identity)
	mux.HandleFunc("POST /logout", s.logout)
	mux.HandleFunc("POST /profile", sessionHandler(s, s.client.Profile))
	mux.HandleFunc("POST /loans", sessionHandler(s, s.client.Loans))
	mux.HandleFunc("POST /history", sessionHandler(s, s.client.History))
	mux.HandleFunc("POST /bills", sessionHandler(s, s.client.Bills))
	mux.HandleFunc("POST /debts", sessionHandler(s, s.client.Debts))
	mux.HandleFunc("POST /search", s.search)
	mux.HandleFunc("POST /detail", s.detail)
	mux.HandleFunc("GET /ranking", s.ranking)
}

type badRequest struct {
	Code    libsys.Code `json:"code"`
	Message string      `json:"msg"`
}

func (s Server) writeJson(w http.ResponseWriter, status int, value any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(value)
	if err != nil {
		s.tel.ReportWarning(report_handler, fmt.Errorf("write response: %w", err))
	}
}

// writeResult answers with the envelope. The envelope carries the outcome,
// so every result is a 200.
func writeResult[T any](s Server, w http.ResponseWriter, result libsys.Result[T]) {
	s.writeJson(w, http.StatusOK, result)
}

func (s Server) writeBadRequest(w http.ResponseWriter, err error) {
	s.writeJson(w, http.StatusBadRequest, badRequest{
		Code:    libsys.CodeUnexpected,
		Message: err.Error(),
	})
}

func decode[T any](r *http.Request) (T, error) {
	var out T
	if r.ContentLength == 0 {
		return out, nil
	}
	err := json.NewDecoder(r.Body).Decode(&out)
	if err != nil {
		return out, fmt.Errorf("decode request: %w", err)
	}
	return out, nil
}

// sessionRequest names the session of a call: inline, or by stored account.
type sessionRequest struct {
	Session *libsys.Session `json:"session"`
	Account string          `json:"account"`
}

var errNoSession = errors.New("either session or account is required")

func (s Server) resolve(ctx context.Context, req sessionRequest) (libsys.Session, error) {
	if req.Session != nil {
		return *req.Session, nil
	}
	if req.Account == "" {
		return libsys.Session{}, errNoSession
	}
	entry, err := s.store.Load(ctx, req.Account)
	if errors.Is(err, sessionstore.ErrNotFound) {
		return libsys.Session{}, fmt.Errorf("no stored session for %s", req.Account)
	}
	if err != nil {
		return libsys.Session{}, err
	}
	return entry.Session, nil
}

// remember keeps the session a call produced when it was made for an account.
func (s Server) remember(ctx context.Context, account string, code libsys.Code, session *libsys.Session) {
	if account == "" {
		return
	}
	var err error
	switch {
	case code == libsys.CodeSessionExpired:
		err = s.store.Delete(ctx, account)
	case session != nil:
		err = s.store.Save(ctx, account, *session)
	}
	if err != nil {
		s.tel.ReportBroken(report_handler, err, account)
	}
}

func sessionHandler[T any](s Server, call func(context.Context, libsys.Session) libsys.Result[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode[sessionRequest](r)
		if err != nil {
			s.writeBadRequest(w, err)
			return
		}
		session, err := s.resolve(r.Context(), req)
		if err != nil {
			s.writeBadRequest(w, err)
			return
		}
		result := call(r.Context(), session)
		if req.Session == nil {
			s.remember(r.Context(), req.Account, result.Code, nil)
		}
		writeResult(s, w, result)
	}
}

func (s Server) challenge(w http.ResponseWriter, r *http.Request) {
	writeResult(s, w, s.client.IssueChallenge(r.Context()))
}

type verifyRequest struct {
	libsys.Credentials
	// Account, when set, keeps the resulting session on the server.
	Account string `json:"account"`
}

func (s Server) verify(w http.ResponseWriter, r *http.Request) {
	req, err := decode[verifyRequest](r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	result := s.client.Verify(r.Context(), req.Credentials)
	s.remember(r.Context(), req.Account, result.Code, result.Data)
	writeResult(s, w, result)
}

type identityRequest struct {
	sessionRequest
	Name        string `json:"name"`
	NewPassword string `json:"new_password"`
}

func (s Server) identity(w http.ResponseWriter, r *http.Request) {
	req, err := decode[identityRequest](r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	session, err := s.resolve(r.Context(), req.sessionRequest)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	result := s.client.CompleteIdentityVerification(r.Context(), session, req.Name, req.NewPassword)
	if result.OK() && req.Account != "" {
		err = s.store.Delete(r.Context(), req.Account)
		if err != nil {
			s.tel.ReportBroken(report_handler, err, req.Account)
		}
	}
	writeResult(s, w, result)
}

func (s Server) logout(w http.ResponseWriter, r *http.Request) {
	req, err := decode[sessionRequest](r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	session := libsys.NewSession()
	if req.Session != nil {
		session = *req.Session
	}
	if req.Account != "" {
		err = s.store.Delete(r.Context(), req.Account)
		if err != nil {
			s.tel.ReportBroken(report_handler, err, req.Account)
		}
	}
	writeResult(s, w, s.client.Logout(session))
}

func (s Server) search(w http.ResponseWriter, r *http.Request) {
	query, err := decode[libsys.SearchQuery](r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if query.Page == 0 {
		query.Page = 1
	}
	writeResult(s, w, s.client.Search(r.Context(), query))
}

type detailRequest struct {
	MarcNo string `json:"marc_no"`
}

func (s Server) detail(w http.ResponseWriter, r *http.Request) {
	req, err := decode[detailRequest](r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	writeResult(s, w, s.client.Detail(r.Context(), req.MarcNo))
}

func (s Server) ranking(w http.ResponseWriter, r *http.Request) {
	writeResult(s, w, s.client.Ranking(r.Context()))
}
