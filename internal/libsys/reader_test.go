package libsys

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReaderCallsWithActiveSession(t *testing.T) {
	portal := newFakePortal(t)
	client, _ := newTestClient(t, portal.server.URL, time.Second)
	ctx := context.Background()
	session := activeSession()

	profile := client.Profile(ctx, session)
	require.Equal(t, CodeSuccess, profile.Code, profile.Message)
	require.Equal(t, "获取个人信息成功", profile.Message)
	require.Equal(t, "王小明", profile.Data.Name)
	require.Equal(t, "10", profile.Data.MaxBorrow)

	loans := client.Loans(ctx, session)
	require.Equal(t, CodeSuccess, loans.Code, loans.Message)
	require.Len(t, loans.Data.Books, 2)

	history := client.History(ctx, session)
	require.Equal(t, CodeSuccess, history.Code, history.Message)
	require.Len(t, *history.Data, 2)
	require.Equal(t, "all", portal.lastForm(pathHistory).Get("para_string"))

	bills := client.Bills(ctx, session)
	require.Equal(t, CodeSuccess, bills.Code, bills.Message)
	require.Len(t, bills.Data.Items, 2)

	debts := client.Debts(ctx, session)
	require.Equal(t, CodeSuccess, debts.Code, debts.Message)
	require.Len(t, *debts.Data, 1)

	// the caller's session is never modified
	require.Equal(t, activeSession(), session)
}

func TestReaderCallsWithExpiredSession(t *testing.T) {
	portal := newFakePortal(t)
	client, _ := newTestClient(t, portal.server.URL, time.Second)
	ctx := context.Background()
	expired := ResumeSession(map[string]string{cookieName: "stale"})

	codes := []Code{
		client.Profile(ctx, expired).Code,
		client.Loans(ctx, expired).Code,
		client.History(ctx, expired).Code,
		client.Bills(ctx, expired).Code,
		client.Debts(ctx, expired).Code,
	}
	for _, code := range codes {
		require.Equal(t, CodeSessionExpired, code)
	}

	result := client.Loans(ctx, expired)
	require.Equal(t, "登录过期，请重新登录", result.Message)
	require.Nil(t, result.Data)
}

func TestReaderCallsWithEmptyTables(t *testing.T) {
	portal := newFakePortal(t)
	portal.route(pathLoans, portal.authenticated("book_lst_empty.html"))
	portal.route(pathHistory, portal.authenticated("book_lst_empty.html"))
	portal.route(pathAccount, portal.authenticated("book_lst_empty.html"))
	portal.route(pathDebts, portal.authenticated("fine_pec_empty.html"))
	client, _ := newTestClient(t, portal.server.URL, time.Second)
	ctx := context.Background()
	session := activeSession()

	loans := client.Loans(ctx, session)
	require.Equal(t, CodeEmpty, loans.Code)
	require.Equal(t, "当前无借阅", loans.Message)

	history := client.History(ctx, session)
	require.Equal(t, CodeEmpty, history.Code)
	require.Equal(t, "无历史借阅", history.Message)

	bills := client.Bills(ctx, session)
	require.Equal(t, CodeEmpty, bills.Code)
	require.Equal(t, "无账目清单", bills.Message)

	debts := client.Debts(ctx, session)
	require.Equal(t, CodeEmpty, debts.Code)
	require.Equal(t, "无欠款记录", debts.Message)
}

func TestDebtsWithoutTable(t *testing.T) {
	portal := newFakePortal(t)
	portal.route(pathDebts, portal.authenticated("book_hist.html"))
	client, _ := newTestClient(t, portal.server.URL, time.Second)

	result := client.Debts(context.Background(), activeSession())
	require.Equal(t, CodeSuccess, result.Code)
	require.Empty(t, *result.Data)
}
