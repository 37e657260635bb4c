package libsys

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"webopac/lib/htmlutil"
	"webopac/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

// SearchField is the catalog field a search matches against.
type SearchField string

const (
	FieldTitle     SearchField = "title"
	FieldAuthor    SearchField = "author"
	FieldKeyword   SearchField = "keyword"
	FieldIsbn      SearchField = "isbn"
	FieldOrderNo   SearchField = "asordno"
	FieldCoden     SearchField = "coden"
	FieldCallNo    SearchField = "callno"
	FieldPublisher SearchField = "publisher"
	FieldSeries    SearchField = "series"
)

var searchFields = []SearchField{
	FieldTitle, FieldAuthor, FieldKeyword, FieldIsbn, FieldOrderNo,
	FieldCoden, FieldCallNo, FieldPublisher, FieldSeries,
}

// ParseSearchField accepts one of the catalog's field names. An unknown
// name fails with the closest known one as a hint.
func ParseSearchField(name string) (SearchField, error) {
	normalized := SearchField(textutil.NormalizeName(name))
	for _, f := range searchFields {
		if f == normalized {
			return f, nil
		}
	}

	candidates := make([]string, len(searchFields))
	for i, f := range searchFields {
		candidates[i] = string(f)
	}
	if suggestion := textutil.Suggest(name, candidates, 0.7); suggestion != "" {
		return "", failf(CodeUnexpected, "未知的检索字段 %q，是否要使用 %q？", name, suggestion)
	}
	return "", failf(CodeUnexpected, "未知的检索字段 %q", name)
}

type SearchQuery struct {
	Field   SearchField `json:"type"`
	Content string      `json:"content"`
	// Page starts at 1.
	Page int `json:"page"`
}

type SearchResult struct {
	// Type is the material type, e.g. 中文图书.
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	CallNo    string  `json:"call_no"`
	Author    string  `json:"author"`
	Publisher string  `json:"publisher"`
	Total     int     `json:"total"`
	Lendable  int     `json:"lendable"`
	MarcNo    *string `json:"marc_no"`
}

type SearchPage struct {
	Count int            `json:"count"`
	Page  int            `json:"page"`
	Pages int            `json:"pages"`
	Books []SearchResult `json:"books"`
}

var (
	totalCopiesRegex    = regexp.MustCompile(`馆藏复本：\s*(\d+)`)
	lendableCopiesRegex = regexp.MustCompile(`可借复本：\s*(\d+)`)
)

func matchCount(re *regexp.Regexp, s string) int {
	groups := re.FindStringSubmatch(s)
	if len(groups) < 2 {
		return 0
	}
	n, _ := strconv.Atoi(groups[1])
	return n
}

func parseSearchResult(li *goquery.Selection) SearchResult {
	heading := li.Find("h3")
	titleAnchor := heading.Find("a")
	p := li.Find("p").First()
	own := htmlutil.OwnTexts(p)
	content := text(li)

	result := SearchResult{
		Type:     text(heading.Find("span")),
		Title:    text(titleAnchor),
		Total:    matchCount(totalCopiesRegex, content),
		Lendable: matchCount(lendableCopiesRegex, content),
		MarcNo:   marcNoOf(p.Find("a")),
	}
	// titles are numbered: "1.Title"
	if _, title, found := strings.Cut(result.Title, "."); found {
		result.Title = strings.TrimSpace(title)
	}
	if callNo := htmlutil.OwnTexts(heading); len(callNo) > 0 {
		result.CallNo = callNo[len(callNo)-1]
	}
	if len(own) > 0 {
		result.Author = own[0]
	}
	if len(own) > 1 {
		result.Publisher = htmlutil.Squash(own[1])
	}
	if result.MarcNo == nil {
		result.MarcNo = marcNoOf(titleAnchor)
	}
	return result
}

// parseSearchPage reads the paging metadata and the result list. A missing
// or unreadable page count means the results fit on one page.
func parseSearchPage(doc *goquery.Document, page int) SearchPage {
	container := doc.Find("div#container")
	count, _ := strconv.Atoi(strings.ReplaceAll(text(container.Find("strong.red").First()), ",", ""))

	pages, err := strconv.Atoi(text(container.Find("span.num_prev b font[color='black']").First()))
	if err != nil || pages < 1 {
		pages = 1
	}

	out := SearchPage{
		Count: count,
		Page:  page,
		Pages: pages,
		Books: []SearchResult{},
	}
	container.Find("ol#search_book_list li").Each(func(_ int, li *goquery.Selection) {
		out.Books = append(out.Books, parseSearchResult(li))
	})
	return out
}

// Search queries the public catalog. Asking for a page past the last one
// fails without any results.
func (c *Client) Search(ctx context.Context, query SearchQuery) Result[SearchPage] {
	return run(ctx, c, opSearch, func(ctx context.Context) (Result[SearchPage], error) {
		field, err := ParseSearchField(string(query.Field))
		if err != nil {
			return Result[SearchPage]{}, err
		}
		if strings.TrimSpace(query.Content) == "" {
			return Result[SearchPage]{}, fail(CodeUnexpected, "检索内容不能为空")
		}
		if query.Page < 1 {
			return Result[SearchPage]{}, failf(CodeUnexpected, "页码必须从 1 开始，而不是 %d", query.Page)
		}

		ex, err := c.newExchange(NewSession(), true)
		if err != nil {
			return Result[SearchPage]{}, err
		}
		doc, err := ex.getDocument(ctx, pathSearch, map[string]string{
			"onlylendable": "yes",
			string(field):  query.Content,
			"page":         strconv.Itoa(query.Page),
		})
		if err != nil {
			return Result[SearchPage]{}, err
		}

		page := parseSearchPage(doc, query.Page)
		if query.Page > page.Pages {
			return Result[SearchPage]{}, fail(CodeUnexpected, "已超过最多页数")
		}
		if len(page.Books) == 0 {
			return Result[SearchPage]{}, fail(CodeEmpty, "没有找到相关图书")
		}
		return succeed(CodeSuccess, opSearch.succeeded(), page), nil
	})
}

type Holding struct {
	CallNo     string `json:"call_no"`
	BarCode    string `json:"bar_code"`
	AnnualRoll string `json:"annual_roll"`
	Location   string `json:"location"`
	// ReturnLocation is where a borrowed copy goes back to, from the
	// location cell's tooltip.
	ReturnLocation string `json:"return_location"`
	Status         string `json:"status"`
}

type BookDetail struct {
	MarcNo      string    `json:"marc_no"`
	Title       string    `json:"title"`
	FullTitle   string    `json:"full_title"`
	OthTitle    string    `json:"oth_title"`
	Author      string    `json:"author"`
	OthAuthor   string    `json:"oth_author"`
	Category    string    `json:"category"`
	Publisher   string    `json:"publisher"`
	Isbn        string    `json:"isbn"`
	Physical    string    `json:"physical"`
	Notes       string    `json:"notes"`
	AuthorNotes string    `json:"author_notes"`
	Abstract    string    `json:"abstract"`
	CallNo      string    `json:"call_no"`
	Holdings    []Holding `json:"holdings"`
}

var detailLabels = []label[BookDetail]{
	{"题名/责任者", func(d *BookDetail, l labeled) {
		d.Title = text(l.value.Find("a").First())
		d.FullTitle = l.text
	}},
	{"其它题名", func(d *BookDetail, l labeled) { d.OthTitle = l.text }},
	{"个人次要责任者", func(d *BookDetail, l labeled) { d.OthAuthor = l.text }},
	{"个人责任者", func(d *BookDetail, l labeled) { d.Author = l.text }},
	{"学科主题", func(d *BookDetail, l labeled) { d.Category = l.text }},
	{"出版发行项", func(d *BookDetail, l labeled) { d.Publisher = l.text }},
	{"isbn及定价", func(d *BookDetail, l labeled) { d.Isbn = l.text }},
	{"载体形态项", func(d *BookDetail, l labeled) { d.Physical = l.text }},
	{"一般附注", func(d *BookDetail, l labeled) { d.Notes = l.text }},
	{"责任者附注", func(d *BookDetail, l labeled) { d.AuthorNotes = l.text }},
	{"提要文摘附注", func(d *BookDetail, l labeled) { d.Abstract = l.text }},
	{"中图法分类号", func(d *BookDetail, l labeled) { d.CallNo = l.text }},
}

var holdingColumns = []column[Holding]{
	{0, func(h *Holding, cell *goquery.Selection) { h.CallNo = text(cell) }},
	{1, func(h *Holding, cell *goquery.Selection) { h.BarCode = text(cell) }},
	{2, func(h *Holding, cell *goquery.Selection) { h.AnnualRoll = htmlutil.Squash(text(cell)) }},
	{3, func(h *Holding, cell *goquery.Selection) {
		h.Location = text(cell)
		h.ReturnLocation = htmlutil.Clean(cell.AttrOr("title", ""))
	}},
	{4, func(h *Holding, cell *goquery.Selection) { h.Status = text(cell) }},
}

func parseDetail(doc *goquery.Document, marcNo string) BookDetail {
	detail := BookDetail{MarcNo: marcNo}
	applyLabels(&detail, definitionPairs(doc.Find("#item_detail dl")), detailLabels)
	detail.Holdings = extractRows(doc.Find("table#item tr"), holdingColumns)
	return detail
}

// Detail reads the bibliographic record and the copies of one catalog entry.
func (c *Client) Detail(ctx context.Context, marcNo string) Result[BookDetail] {
	return run(ctx, c, opDetail, func(ctx context.Context) (Result[BookDetail], error) {
		marcNo = strings.TrimSpace(marcNo)
		if marcNo == "" {
			return Result[BookDetail]{}, fail(CodeUnexpected, "marc_no 不能为空")
		}

		ex, err := c.newExchange(NewSession(), true)
		if err != nil {
			return Result[BookDetail]{}, err
		}
		doc, err := ex.getDocument(ctx, pathItem, map[string]string{"marc_no": marcNo})
		if err != nil {
			return Result[BookDetail]{}, err
		}
		if doc.Find("#item_detail").Length() == 0 {
			return Result[BookDetail]{}, fail(CodeEmpty, fmt.Sprintf("未找到图书 %s", marcNo))
		}
		return succeed(CodeSuccess, opDetail.succeeded(), parseDetail(doc, marcNo)), nil
	})
}

type RankedBook struct {
	Index         string  `json:"index"`
	Title         string  `json:"title"`
	MarcNo        *string `json:"marc_no"`
	Author        string  `json:"author"`
	Publisher     string  `json:"publisher"`
	CallNo        string  `json:"call_no"`
	TotalNum      string  `json:"total_num"`
	BorrowedTimes string  `json:"borrowed_times"`
	BorrowedRatio string  `json:"borrowed_ratio"`
}

type Ranking struct {
	// Updated is the unix time the ranking was read at.
	Updated int64        `json:"updated"`
	Books   []RankedBook `json:"books"`
}

var rankingColumns = []column[RankedBook]{
	{0, func(b *RankedBook, cell *goquery.Selection) { b.Index = text(cell) }},
	{1, func(b *RankedBook, cell *goquery.Selection) {
		anchor := cell.Find("a")
		b.Title = text(anchor)
		b.MarcNo = marcNoOf(anchor)
	}},
	{2, func(b *RankedBook, cell *goquery.Selection) { b.Author = text(cell) }},
	{3, func(b *RankedBook, cell *goquery.Selection) { b.Publisher = text(cell) }},
	{4, func(b *RankedBook, cell *goquery.Selection) { b.CallNo = text(cell) }},
	{5, func(b *RankedBook, cell *goquery.Selection) { b.TotalNum = text(cell) }},
	{6, func(b *RankedBook, cell *goquery.Selection) { b.BorrowedTimes = text(cell) }},
	{7, func(b *RankedBook, cell *goquery.Selection) { b.BorrowedRatio = text(cell) }},
}

// Ranking reads the most borrowed books across all categories. It needs no
// session.
func (c *Client) Ranking(ctx context.Context) Result[Ranking] {
	return run(ctx, c, opRanking, func(ctx context.Context) (Result[Ranking], error) {
		ex, err := c.newExchange(NewSession(), true)
		if err != nil {
			return Result[Ranking]{}, err
		}
		doc, err := ex.getDocument(ctx, pathRanking, map[string]string{"cls_no": "ALL"})
		if err != nil {
			return Result[Ranking]{}, err
		}
		books := extractRows(doc.Find("table.table_line tr"), rankingColumns)
		if len(books) == 0 {
			return Result[Ranking]{}, fail(CodeEmpty, "暂无热门借阅")
		}
		return succeed(CodeSuccess, opRanking.succeeded(), Ranking{
			Updated: c.clock.Now().Unix(),
			Books:   books,
		}), nil
	})
}
