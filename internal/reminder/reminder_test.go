package reminder

import (
	"context"
	"errors"
	"testing"
	"time"
	"webopac/internal/components/chrono"
	"webopac/internal/components/telemetry"
	"webopac/internal/libsys"
	"webopac/internal/sessionstore"

	"github.com/stretchr/testify/require"
)

var shanghai = time.FixedZone("CST", 8*3600)
var clock = chrono.FixedImpl{At: time.Date(2026, time.October, 16, 21, 0, 0, 0, shanghai)}

func loan(barCode, dueDate string) libsys.Loan {
	return libsys.Loan{BarCode: barCode, Title: "书" + barCode, DueDate: dueDate, Location: "借阅室"}
}

func TestSelectDue(t *testing.T) {
	tel := &telemetry.Recorder{}
	loans := []libsys.Loan{
		loan("later", "2026-10-25"),
		loan("edge", "2026-10-19"),
		loan("today", "2026-10-16"),
		loan("overdue", "2026-10-10"),
		loan("garbled", "十月"),
		loan("past-edge", "2026-10-20"),
	}

	due := SelectDue(clock, tel, loans, 3)
	var barCodes []string
	var daysLeft []int
	for _, d := range due {
		barCodes = append(barCodes, d.Loan.BarCode)
		daysLeft = append(daysLeft, d.DaysLeft)
	}
	require.Equal(t, []string{"overdue", "today", "edge"}, barCodes)
	require.Equal(t, []int{-6, 0, 3}, daysLeft)
	require.Len(t, tel.Reports("warning"), 1)
}

func TestCompose(t *testing.T) {
	subject, body := Compose([]Due{
		{Loan: loan("A1", "2026-10-10"), DaysLeft: -6},
		{Loan: loan("A2", "2026-10-16"), DaysLeft: 0},
		{Loan: loan("A3", "2026-10-18"), DaysLeft: 2},
	})
	require.Contains(t, subject, "3 本")
	require.Contains(t, body, "《书A1》 条码号 A1，应还日期 2026-10-10（已超期 6 天）")
	require.Contains(t, body, "今天到期")
	require.Contains(t, body, "2 天后到期")
}

type fakeLoaner map[string]libsys.Result[libsys.LoanList]

func (f fakeLoaner) Loans(ctx context.Context, session libsys.Session) libsys.Result[libsys.LoanList] {
	return f[session.Cookies["PHPSESSID"]]
}

type sent struct {
	to      string
	subject string
}

type recordingSender struct {
	sent []sent
	fail map[string]bool
}

func (r *recordingSender) Send(ctx context.Context, to, subject, body string) error {
	if r.fail[to] {
		return errors.New("relay refused")
	}
	r.sent = append(r.sent, sent{to: to, subject: subject})
	return nil
}

func loanList(loans ...libsys.Loan) libsys.Result[libsys.LoanList] {
	list := libsys.LoanList{Books: loans}
	return libsys.Result[libsys.LoanList]{Code: libsys.CodeSuccess, Data: &list}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	db, err := sessionstore.OpenDB(":memory:")
	require.NoError(t, err)
	defer db.Close()
	store := sessionstore.NewStore(db, clock)

	save := func(account, cookie string, state libsys.State) {
		session := libsys.ResumeSession(map[string]string{"PHPSESSID": cookie})
		session.State = state
		require.NoError(t, store.Save(ctx, account, session))
	}
	save("alice", "alice", libsys.StateActive)
	save("bob", "bob", libsys.StateActive)
	save("carol", "carol", libsys.StateActive)
	save("dave", "dave", libsys.StateIdentityPending)
	save("erin", "erin", libsys.StateActive)
	save("nobody", "nobody", libsys.StateActive)

	sender := &recordingSender{fail: map[string]bool{"erin@example.edu": true}}
	tel := &telemetry.Recorder{}
	r := Reminder{
		Loans: fakeLoaner{
			"alice": loanList(loan("A1", "2026-10-17"), loan("A2", "2026-12-01")),
			"bob":   loanList(loan("B1", "2026-12-01")),
			"carol": {Code: libsys.CodeSessionExpired, Message: "登录过期，请重新登录"},
			"erin":  loanList(loan("E1", "2026-10-16")),
		},
		Store:  store,
		Sender: sender,
		Clock:  clock,
		Tel:    tel,
		Within: 3,
		Recipients: map[string]string{
			"alice": "alice@example.edu",
			"bob":   "bob@example.edu",
			"carol": "carol@example.edu",
			"dave":  "dave@example.edu",
			"erin":  "erin@example.edu",
		},
	}

	outcomes, err := r.Run(ctx)
	require.ErrorContains(t, err, "remind erin")
	require.Equal(t, []Outcome{
		{Account: "alice", Code: libsys.CodeSuccess, Due: 1, Sent: true},
		{Account: "bob", Code: libsys.CodeSuccess},
		{Account: "carol", Code: libsys.CodeSessionExpired},
		{Account: "erin", Code: libsys.CodeSuccess, Due: 1},
	}, outcomes)
	require.Equal(t, []sent{{to: "alice@example.edu", subject: "图书到期提醒：1 本图书即将到期"}}, sender.sent)
	require.Len(t, tel.Reports("broken"), 1)
}
