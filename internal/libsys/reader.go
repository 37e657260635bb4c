package libsys

import (
	"context"
	"strings"
	"webopac/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Profile is the reader's account summary merged from the dashboard and the
// account details page.
type Profile struct {
	Name         string `json:"name"`
	Sex          string `json:"sex"`
	CertStart    string `json:"cert_start"`
	CertWork     string `json:"cert_work"`
	CertEnd      string `json:"cert_end"`
	ReaderType   string `json:"reader_type"`
	BorrowLevel  string `json:"borrow_level"`
	TotalBorrow  string `json:"total_borrow"`
	Violations   string `json:"violations"`
	Debt         string `json:"debt"`
	Deposit      string `json:"deposit"`
	ServiceFee   string `json:"service_fee"`
	MaxBorrow    string `json:"max_borrow"`
	MaxOrder     string `json:"max_order"`
	MaxEntrust   string `json:"max_entrust"`
	Overdue      string `json:"overdue"`
	OverduePct   string `json:"percent"`
}

var profileLabels = []label[Profile]{
	{"姓名", func(p *Profile, l labeled) { p.Name = l.text }},
	{"性别", func(p *Profile, l labeled) { p.Sex = l.text }},
	{"失效日期", func(p *Profile, l labeled) { p.CertEnd = l.text }},
	{"办证日期", func(p *Profile, l labeled) { p.CertStart = l.text }},
	{"生效日期", func(p *Profile, l labeled) { p.CertWork = l.text }},
	{"读者类型", func(p *Profile, l labeled) { p.ReaderType = l.text }},
	{"借阅等级", func(p *Profile, l labeled) { p.BorrowLevel = l.text }},
	{"累计借书", func(p *Profile, l labeled) { p.TotalBorrow = l.text }},
	{"违章次数", func(p *Profile, l labeled) { p.Violations = l.text }},
	{"欠款金额", func(p *Profile, l labeled) { p.Debt = l.text }},
	{"押金", func(p *Profile, l labeled) { p.Deposit = l.text }},
	{"手续费", func(p *Profile, l labeled) { p.ServiceFee = l.text }},
}

func parseProfileSummary(doc *goquery.Document, profile *Profile) {
	limits := doc.Find(".bigger-170")
	limit := func(i int) string {
		return strings.ReplaceAll(text(limits.Eq(i)), " ", "")
	}
	profile.MaxBorrow = limit(0)
	profile.MaxOrder = limit(1)
	profile.MaxEntrust = limit(2)
	profile.Overdue = text(doc.Find("span.infobox-data-number").First())
	profile.OverduePct = text(doc.Find(".Num").First())
}

func parseProfileDetails(doc *goquery.Document, profile *Profile) {
	applyLabels(profile, colonPairs(doc.Find("div#mylib_info tr td")), profileLabels)
}

// Profile reads the account of the session's reader.
func (c *Client) Profile(ctx context.Context, session Session) Result[Profile] {
	return run(ctx, c, opProfile, func(ctx context.Context) (Result[Profile], error) {
		ex, err := c.activeExchange(session)
		if err != nil {
			return Result[Profile]{}, err
		}

		var profile Profile
		doc, err := ex.getDocument(ctx, pathInfo, nil)
		if err != nil {
			return Result[Profile]{}, err
		}
		err = checkSession(doc)
		if err != nil {
			return Result[Profile]{}, err
		}
		parseProfileSummary(doc, &profile)

		doc, err = ex.getDocument(ctx, pathInfoRule, nil)
		if err != nil {
			return Result[Profile]{}, err
		}
		err = checkSession(doc)
		if err != nil {
			return Result[Profile]{}, err
		}
		parseProfileDetails(doc, &profile)

		return succeed(CodeSuccess, opProfile.succeeded(), profile), nil
	})
}

// activeExchange refuses sessions that never completed a login before any
// request is made.
func (c *Client) activeExchange(session Session) (*exchange, error) {
	if session.State != StateActive {
		return nil, fail(CodeSessionExpired, "登录过期，请重新登录")
	}
	return c.newExchange(session, true)
}

type Loan struct {
	BarCode    string  `json:"bar_code"`
	Title      string  `json:"title"`
	MarcNo     *string `json:"marc_no"`
	Author     string  `json:"author"`
	BorrowDate string  `json:"borrow_date"`
	DueDate    string  `json:"due_date"`
	// RenewCount is the number of renewals already used.
	RenewCount string `json:"cnum"`
	Location   string `json:"location"`
}

type LoanList struct {
	Now   string `json:"now"`
	Max   string `json:"max"`
	Books []Loan `json:"books"`
}

var loanColumns = []column[Loan]{
	{0, func(l *Loan, cell *goquery.Selection) { l.BarCode = text(cell) }},
	{1, func(l *Loan, cell *goquery.Selection) {
		anchor := cell.Find("a.blue")
		l.Title = text(anchor)
		l.MarcNo = marcNoOf(anchor)
		if parts := strings.Split(text(cell), "/"); len(parts) > 1 {
			l.Author = strings.TrimSpace(parts[1])
		}
	}},
	{2, func(l *Loan, cell *goquery.Selection) { l.BorrowDate = text(cell) }},
	{3, func(l *Loan, cell *goquery.Selection) { l.DueDate = text(cell) }},
	{4, func(l *Loan, cell *goquery.Selection) { l.RenewCount = text(cell) }},
	{5, func(l *Loan, cell *goquery.Selection) { l.Location = text(cell) }},
}

func parseLoans(doc *goquery.Document) (LoanList, bool) {
	if hasEmptyMarker(doc) {
		return LoanList{}, false
	}
	counts := doc.Find("div#mylib_content p[style='margin:10px auto;'] b")
	list := LoanList{
		Now:   text(counts.Eq(0)),
		Max:   text(counts.Eq(1)),
		Books: extractRows(doc.Find("table").Eq(0).Find("tr"), loanColumns),
	}
	return list, len(list.Books) > 0
}

// Loans lists the books the reader currently holds.
func (c *Client) Loans(ctx context.Context, session Session) Result[LoanList] {
	return run(ctx, c, opLoans, func(ctx context.Context) (Result[LoanList], error) {
		ex, err := c.activeExchange(session)
		if err != nil {
			return Result[LoanList]{}, err
		}
		doc, err := ex.getDocument(ctx, pathLoans, nil)
		if err != nil {
			return Result[LoanList]{}, err
		}
		err = checkSession(doc)
		if err != nil {
			return Result[LoanList]{}, err
		}
		list, ok := parseLoans(doc)
		if !ok {
			return Result[LoanList]{}, fail(CodeEmpty, "当前无借阅")
		}
		return succeed(CodeSuccess, opLoans.succeeded(), list), nil
	})
}

type HistoryEntry struct {
	Index      string  `json:"index"`
	BarCode    string  `json:"bar_code"`
	Title      string  `json:"title"`
	MarcNo     *string `json:"marc_no"`
	Author     string  `json:"author"`
	BorrowDate string  `json:"borrow_date"`
	ReturnDate string  `json:"return_date"`
	Location   string  `json:"location"`
}

var historyColumns = []column[HistoryEntry]{
	{0, func(h *HistoryEntry, cell *goquery.Selection) { h.Index = text(cell) }},
	{1, func(h *HistoryEntry, cell *goquery.Selection) { h.BarCode = text(cell) }},
	{2, func(h *HistoryEntry, cell *goquery.Selection) {
		anchor := cell.Find("a.blue")
		h.Title = text(anchor)
		h.MarcNo = marcNoOf(anchor)
	}},
	{3, func(h *HistoryEntry, cell *goquery.Selection) { h.Author = text(cell) }},
	{4, func(h *HistoryEntry, cell *goquery.Selection) { h.BorrowDate = text(cell) }},
	{5, func(h *HistoryEntry, cell *goquery.Selection) { h.ReturnDate = text(cell) }},
	{6, func(h *HistoryEntry, cell *goquery.Selection) { h.Location = text(cell) }},
}

func parseHistory(doc *goquery.Document) []HistoryEntry {
	if hasEmptyMarker(doc) {
		return nil
	}
	return extractRows(doc.Find("table tr"), historyColumns)
}

// History lists every loan the reader ever made.
func (c *Client) History(ctx context.Context, session Session) Result[[]HistoryEntry] {
	return run(ctx, c, opHistory, func(ctx context.Context) (Result[[]HistoryEntry], error) {
		ex, err := c.activeExchange(session)
		if err != nil {
			return Result[[]HistoryEntry]{}, err
		}
		doc, err := ex.postDocument(ctx, pathHistory, map[string]string{"para_string": "all"})
		if err != nil {
			return Result[[]HistoryEntry]{}, err
		}
		err = checkSession(doc)
		if err != nil {
			return Result[[]HistoryEntry]{}, err
		}
		entries := parseHistory(doc)
		if len(entries) == 0 {
			return Result[[]HistoryEntry]{}, fail(CodeEmpty, "无历史借阅")
		}
		return succeed(CodeSuccess, opHistory.succeeded(), entries), nil
	})
}

type Bill struct {
	Date         string `json:"date"`
	Type         string `json:"type"`
	Refund       string `json:"refund"`
	Contribution string `json:"contribution"`
	PayMethod    string `json:"pay_method"`
	BillNo       string `json:"bill_no"`
}

type BillList struct {
	// Summary is the totals line below the table.
	Summary string `json:"desc"`
	Items   []Bill `json:"items"`
}

var billColumns = []column[Bill]{
	{0, func(b *Bill, cell *goquery.Selection) { b.Date = text(cell) }},
	{1, func(b *Bill, cell *goquery.Selection) { b.Type = text(cell) }},
	{2, func(b *Bill, cell *goquery.Selection) { b.Refund = text(cell) }},
	{3, func(b *Bill, cell *goquery.Selection) { b.Contribution = text(cell) }},
	{4, func(b *Bill, cell *goquery.Selection) { b.PayMethod = text(cell) }},
	{5, func(b *Bill, cell *goquery.Selection) { b.BillNo = text(cell) }},
}

// billSummary keeps what lies between the first colon and the first
// parenthesis of the totals line.
func billSummary(line string) string {
	_, after, found := cutColon(line)
	if !found {
		after = line
	}
	if idx := strings.IndexAny(after, "(（"); idx >= 0 {
		after = after[:idx]
	}
	return htmlutil.Squash(after)
}

func parseBills(doc *goquery.Document) (BillList, bool) {
	if hasEmptyMarker(doc) {
		return BillList{}, false
	}
	rows := doc.Find("table tr")
	if rows.Length() < 3 {
		return BillList{}, false
	}
	// first row is the header, last row the totals
	list := BillList{
		Summary: billSummary(text(rows.Last().Find("td").Eq(0))),
		Items:   extractRows(rows.Slice(0, rows.Length()-1), billColumns),
	}
	return list, len(list.Items) > 0
}

// Bills lists the reader's financial transactions with the library.
func (c *Client) Bills(ctx context.Context, session Session) Result[BillList] {
	return run(ctx, c, opBills, func(ctx context.Context) (Result[BillList], error) {
		ex, err := c.activeExchange(session)
		if err != nil {
			return Result[BillList]{}, err
		}
		doc, err := ex.postDocument(ctx, pathAccount, nil)
		if err != nil {
			return Result[BillList]{}, err
		}
		err = checkSession(doc)
		if err != nil {
			return Result[BillList]{}, err
		}
		list, ok := parseBills(doc)
		if !ok {
			return Result[BillList]{}, fail(CodeEmpty, "无账目清单")
		}
		return succeed(CodeSuccess, opBills.succeeded(), list), nil
	})
}

type Debt struct {
	BarCode    string  `json:"bar_code"`
	CallNo     string  `json:"call_no"`
	Title      string  `json:"title"`
	MarcNo     *string `json:"marc_no"`
	Author     string  `json:"author"`
	BorrowDate string  `json:"borrow_date"`
	DueDate    string  `json:"due_date"`
	Location   string  `json:"location"`
	Payable    string  `json:"payable"`
	Payin      string  `json:"payin"`
	State      string  `json:"state"`
}

var debtColumns = []column[Debt]{
	{0, func(d *Debt, cell *goquery.Selection) { d.BarCode = text(cell) }},
	{1, func(d *Debt, cell *goquery.Selection) { d.CallNo = text(cell) }},
	{2, func(d *Debt, cell *goquery.Selection) {
		anchor := cell.Find("a")
		d.Title = text(anchor)
		d.MarcNo = marcNoOf(anchor)
	}},
	{3, func(d *Debt, cell *goquery.Selection) { d.Author = text(cell) }},
	{4, func(d *Debt, cell *goquery.Selection) { d.BorrowDate = text(cell) }},
	{5, func(d *Debt, cell *goquery.Selection) { d.DueDate = text(cell) }},
	{6, func(d *Debt, cell *goquery.Selection) { d.Location = text(cell) }},
	{7, func(d *Debt, cell *goquery.Selection) { d.Payable = text(cell) }},
	{8, func(d *Debt, cell *goquery.Selection) { d.Payin = text(cell) }},
	{9, func(d *Debt, cell *goquery.Selection) { d.State = text(cell) }},
}

const markerNoDebts = "欠款记录为空"

// parseDebts reads the table that follows the "欠款信息" heading. The page
// holds other tables too, so the heading is what anchors it.
func parseDebts(doc *goquery.Document) ([]Debt, bool) {
	if strings.Contains(text(doc.Find(emptyMarker)), markerNoDebts) {
		return nil, false
	}
	table := doc.Find("h2").FilterFunction(func(_ int, h *goquery.Selection) bool {
		return strings.Contains(text(h), "欠款信息")
	}).First().Next()
	if table.Length() == 0 {
		return nil, true
	}
	return extractRows(table.Find("tr"), debtColumns), true
}

// Debts lists outstanding fines.
func (c *Client) Debts(ctx context.Context, session Session) Result[[]Debt] {
	return run(ctx, c, opDebts, func(ctx context.Context) (Result[[]Debt], error) {
		ex, err := c.activeExchange(session)
		if err != nil {
			return Result[[]Debt]{}, err
		}
		doc, err := ex.postDocument(ctx, pathDebts, nil)
		if err != nil {
			return Result[[]Debt]{}, err
		}
		err = checkSession(doc)
		if err != nil {
			return Result[[]Debt]{}, err
		}
		debts, ok := parseDebts(doc)
		if !ok {
			return Result[[]Debt]{}, fail(CodeEmpty, "无欠款记录")
		}
		if debts == nil {
			debts = []Debt{}
		}
		return succeed(CodeSuccess, opDebts.succeeded(), debts), nil
	})
}
