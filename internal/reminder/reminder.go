// Package reminder mails readers about loans that are due soon.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"sort"
	"strings"
	"time"
	"webopac/internal/components/chrono"
	"webopac/internal/components/telemetry"
	"webopac/internal/libsys"
	"webopac/internal/sessionstore"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("webopac/reminder")

const (
	report_select = "select"
	report_send   = "send"
	report_run    = "run"
)

// Due is a loan together with how many whole days are left until it must be
// returned. DaysLeft is negative for overdue loans.
type Due struct {
	Loan     libsys.Loan
	DueDate  time.Time
	DaysLeft int
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SelectDue picks the loans due within the given number of days, soonest first.
// Loans whose due date cannot be read are reported and skipped.
func SelectDue(clock chrono.API, tel telemetry.API, loans []libsys.Loan, within int) []Due {
	today := startOfDay(clock.Now().In(clock.Location()))

	var out []Due
	for _, loan := range loans {
		dueDate, err := chrono.ParseDate(clock, loan.DueDate)
		if err != nil {
			tel.ReportWarning(report_select, fmt.Errorf("due date of %s: %w", loan.BarCode, err))
			continue
		}
		// round to whole days, a dst shift must not turn 2 days into 1
		daysLeft := int(dueDate.Sub(today).Round(24*time.Hour) / (24 * time.Hour))
		if daysLeft > within {
			continue
		}
		out = append(out, Due{Loan: loan, DueDate: dueDate, DaysLeft: daysLeft})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out
}

// Compose renders the subject and plain text body of a reminder.
func Compose(due []Due) (subject, body string) {
	subject = fmt.Sprintf("图书到期提醒：%d 本图书即将到期", len(due))

	var b strings.Builder
	b.WriteString("以下图书即将到期或已超期，请及时归还或续借：\n\n")
	for _, d := range due {
		var when string
		switch {
		case d.DaysLeft < 0:
			when = fmt.Sprintf("已超期 %d 天", -d.DaysLeft)
		case d.DaysLeft == 0:
			when = "今天到期"
		default:
			when = fmt.Sprintf("%d 天后到期", d.DaysLeft)
		}
		fmt.Fprintf(&b, "- 《%s》 条码号 %s，应还日期 %s（%s），馆藏地 %s\n",
			d.Loan.Title, d.Loan.BarCode, d.Loan.DueDate, when, d.Loan.Location)
	}
	return subject, b.String()
}

// Sender delivers a composed reminder.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SmtpConfig struct {
	Server       string
	Port         int
	EmailAddress string
	Password     string
}

// SmtpSender sends through an authenticated smtp relay, falling back to an
// unauthenticated one when the relay does not offer AUTH.
type SmtpSender struct {
	Config SmtpConfig
}

func (s SmtpSender) Send(ctx context.Context, to, subject, body string) error {
	ctx, span := tracer.Start(ctx, "send")
	defer span.End()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("图书馆助手 <%s>", s.Config.EmailAddress)
	mail.To = []string{to}
	mail.Subject = subject
	mail.Text = []byte(body)

	address := fmt.Sprintf("%s:%d", s.Config.Server, s.Config.Port)
	err := mail.Send(
		address,
		smtp.PlainAuth("", s.Config.EmailAddress, s.Config.Password, s.Config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(address, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}

// Loaner is the part of the portal client a reminder run needs.
type Loaner interface {
	Loans(ctx context.Context, session libsys.Session) libsys.Result[libsys.LoanList]
}

type Reminder struct {
	Loans      Loaner
	Store      sessionstore.Store
	Sender     Sender
	Clock      chrono.API
	Tel        telemetry.API
	Within     int
	Recipients map[string]string
}

// Outcome is what a run did for one account.
type Outcome struct {
	Account string
	Code    libsys.Code
	Due     int
	Sent    bool
}

// Run checks the loans of every stored active session with a recipient and
// mails the ones that have loans due. One account failing does not stop the
// others, the joined error lists every failure.
func (r Reminder) Run(ctx context.Context) ([]Outcome, error) {
	ctx, span := tracer.Start(ctx, "run")
	defer span.End()

	entries, err := r.Store.List(ctx)
	if err != nil {
		return nil, err
	}

	var outcomes []Outcome
	var errs []error
	for _, entry := range entries {
		to, ok := r.Recipients[entry.Account]
		if !ok || entry.Session.State != libsys.StateActive {
			continue
		}

		outcome := Outcome{Account: entry.Account}
		result := r.Loans.Loans(ctx, entry.Session)
		outcome.Code = result.Code
		if result.Code != libsys.CodeSuccess {
			if result.Code != libsys.CodeEmpty {
				r.Tel.ReportWarning(report_run, entry.Account, result.Code.String(), result.Message)
			}
			outcomes = append(outcomes, outcome)
			continue
		}

		due := SelectDue(r.Clock, r.Tel, result.Data.Books, r.Within)
		outcome.Due = len(due)
		if len(due) > 0 {
			subject, body := Compose(due)
			err := r.Sender.Send(ctx, to, subject, body)
			if err != nil {
				r.Tel.ReportBroken(report_send, err, entry.Account)
				errs = append(errs, fmt.Errorf("remind %s: %w", entry.Account, err))
			} else {
				outcome.Sent = true
			}
		}
		outcomes = append(outcomes, outcome)
	}

	r.Tel.ReportCount(report_run, int64(len(outcomes)))
	return outcomes, errors.Join(errs...)
}
