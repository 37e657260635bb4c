package libsys

import (
	"bytes"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func document(t testing.TB, name string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(fixture(t, name)))
	require.NoError(t, err)
	return doc
}

func ptr(s string) *string {
	return &s
}

func TestMarcNo(t *testing.T) {
	cases := []struct {
		href   string
		expect *string
	}{
		{href: "../opac/item.php?marc_no=0000123456", expect: ptr("0000123456")},
		{href: "item.php?marc_no=4e6a&list=1", expect: ptr("4e6a")},
		{href: "item.php?marc_no=0000000001#holding", expect: ptr("0000000001")},
		{href: "../opac/item.php", expect: nil},
		{href: "item.php?marc_no=", expect: nil},
		{href: "", expect: nil},
		{href: "#", expect: nil},
	}
	for _, test := range cases {
		require.Equal(t, test.expect, marcNo(test.href), test.href)
	}
}

func TestCutColon(t *testing.T) {
	before, after, found := cutColon("姓名：王小明")
	require.True(t, found)
	require.Equal(t, "姓名", before)
	require.Equal(t, "王小明", after)

	before, after, found = cutColon("ISBN:978")
	require.True(t, found)
	require.Equal(t, "ISBN", before)
	require.Equal(t, "978", after)

	_, _, found = cutColon("no colon")
	require.False(t, found)
}

func TestCheckSession(t *testing.T) {
	err := checkSession(document(t, "expired.html"))
	f, ok := AsFailure(err)
	require.True(t, ok)
	require.Equal(t, CodeSessionExpired, f.Code)

	require.NoError(t, checkSession(document(t, "book_lst.html")))
}

func TestParseLoans(t *testing.T) {
	list, ok := parseLoans(document(t, "book_lst.html"))
	require.True(t, ok)

	expect := LoanList{
		Now: "2",
		Max: "10",
		Books: []Loan{
			{
				BarCode:    "A0001",
				Title:      "Go语言程序设计",
				MarcNo:     ptr("0000123456"),
				Author:     "张三 著",
				BorrowDate: "2026-10-01",
				DueDate:    "2026-10-18",
				RenewCount: "0",
				Location:   "中文图书借阅室",
			},
			{
				BarCode:    "A0002",
				Title:      "编译原理",
				Author:     "李四",
				BorrowDate: "2026-09-01",
				DueDate:    "2026-11-30",
				RenewCount: "1",
				Location:   "南校区书库",
			},
		},
	}
	if diff := cmp.Diff(expect, list); diff != "" {
		t.Fatal(diff)
	}

	_, ok = parseLoans(document(t, "book_lst_empty.html"))
	require.False(t, ok)
}

// every parser is a pure function of the document
func TestExtractionIsIdempotent(t *testing.T) {
	loans := document(t, "book_lst.html")
	first, _ := parseLoans(loans)
	second, _ := parseLoans(loans)
	require.Empty(t, cmp.Diff(first, second))

	history := document(t, "book_hist.html")
	require.Empty(t, cmp.Diff(parseHistory(history), parseHistory(history)))

	search := document(t, "openlink.html")
	require.Empty(t, cmp.Diff(parseSearchPage(search, 1), parseSearchPage(search, 1)))

	item := document(t, "item.html")
	require.Empty(t, cmp.Diff(parseDetail(item, "0000123456"), parseDetail(item, "0000123456")))
}

func TestParseHistory(t *testing.T) {
	entries := parseHistory(document(t, "book_hist.html"))
	expect := []HistoryEntry{
		{
			Index:      "1",
			BarCode:    "A0100",
			Title:      "数据结构",
			MarcNo:     ptr("0000000777"),
			Author:     "严蔚敏",
			BorrowDate: "2025-03-01",
			ReturnDate: "2025-03-20",
			Location:   "中文图书借阅室",
		},
		{
			Index:      "2",
			BarCode:    "A0101",
			Title:      "离散数学",
			Author:     "屈婉玲",
			BorrowDate: "2025-04-01",
			ReturnDate: "2025-04-30",
			Location:   "南校区书库",
		},
	}
	if diff := cmp.Diff(expect, entries); diff != "" {
		t.Fatal(diff)
	}
}

func TestParseBills(t *testing.T) {
	list, ok := parseBills(document(t, "account.html"))
	require.True(t, ok)
	require.Equal(t, "退款100.00元，缴款0.50元", list.Summary)
	require.Equal(t, []Bill{
		{Date: "2025-05-01", Type: "超期罚款", Refund: "0.00", Contribution: "0.50", PayMethod: "现金", BillNo: "B001"},
		{Date: "2025-06-01", Type: "押金", Refund: "100.00", Contribution: "0.00", PayMethod: "现金", BillNo: "B002"},
	}, list.Items)
}

func TestParseDebts(t *testing.T) {
	debts, ok := parseDebts(document(t, "fine_pec.html"))
	require.True(t, ok)
	require.Equal(t, []Debt{{
		BarCode:    "A0001",
		CallNo:     "TP312GO/12",
		Title:      "Go语言程序设计",
		MarcNo:     ptr("0000123456"),
		Author:     "张三",
		BorrowDate: "2026-08-01",
		DueDate:    "2026-09-01",
		Location:   "中文图书借阅室",
		Payable:    "0.50",
		Payin:      "0.00",
		State:      "未缴",
	}}, debts)

	_, ok = parseDebts(document(t, "fine_pec_empty.html"))
	require.False(t, ok)
}

func TestParseProfile(t *testing.T) {
	var profile Profile
	parseProfileSummary(document(t, "redr_info.html"), &profile)
	parseProfileDetails(document(t, "redr_info_rule.html"), &profile)

	expect := Profile{
		Name:        "王小明",
		Sex:         "男",
		CertStart:   "2021-09-01",
		CertWork:    "2021-09-02",
		CertEnd:     "2026-07-01",
		ReaderType:  "本科生",
		BorrowLevel: "本科生",
		TotalBorrow: "42册次",
		Violations:  "1",
		Debt:        "0.50",
		Deposit:     "0.00",
		ServiceFee:  "0.00",
		MaxBorrow:   "10",
		MaxOrder:    "5",
		MaxEntrust:  "2",
		Overdue:     "1",
		OverduePct:  "10%",
	}
	if diff := cmp.Diff(expect, profile); diff != "" {
		t.Fatal(diff)
	}
}

func TestParseSearchPage(t *testing.T) {
	page := parseSearchPage(document(t, "openlink.html"), 2)
	expect := SearchPage{
		Count: 25,
		Page:  2,
		Pages: 3,
		Books: []SearchResult{
			{
				Type:      "中文图书",
				Title:     "Go语言程序设计",
				CallNo:    "TP312GO/12",
				Author:    "张三 著",
				Publisher: "人民邮电出版社2020",
				Total:     3,
				Lendable:  1,
				MarcNo:    ptr("0000123456"),
			},
			{
				Type:      "中文图书",
				Title:     "Go并发编程",
				CallNo:    "TP312GO/15",
				Author:    "李四",
				Publisher: "机械工业出版社2021",
				Total:     2,
				Lendable:  0,
				MarcNo:    ptr("0000654321"),
			},
		},
	}
	if diff := cmp.Diff(expect, page); diff != "" {
		t.Fatal(diff)
	}
}

func TestParseSearchPageDefaultsToOnePage(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(`<div id="container"><ol id="search_book_list"></ol></div>`))
	require.NoError(t, err)

	page := parseSearchPage(doc, 1)
	require.Equal(t, 1, page.Pages)
	require.Zero(t, page.Count)
	require.Empty(t, page.Books)
}

func TestParseDetail(t *testing.T) {
	detail := parseDetail(document(t, "item.html"), "0000123456")
	expect := BookDetail{
		MarcNo:    "0000123456",
		Title:     "Go语言程序设计",
		FullTitle: "Go语言程序设计/张三著",
		Author:    "张三 著",
		OthAuthor: "李四 译",
		Category:  "程序语言-程序设计",
		Publisher: "北京:人民邮电出版社,2020",
		Isbn:      "978-7-115-00000-0/CNY59.00",
		Physical:  "320页;26cm",
		Abstract:  "本书介绍Go语言。",
		CallNo:    "TP312",
		Holdings: []Holding{
			{
				CallNo:         "TP312GO/12",
				BarCode:        "A0001",
				AnnualRoll:     "-",
				Location:       "南校区—中文图书借阅室",
				ReturnLocation: "还回中文图书借阅室",
				Status:         "可借",
			},
			{
				CallNo:     "TP312GO/12",
				BarCode:    "A0003",
				AnnualRoll: "-",
				Location:   "北校区—书库",
				Status:     "借出-应还日期：2026-11-01",
			},
		},
	}
	if diff := cmp.Diff(expect, detail); diff != "" {
		t.Fatal(diff)
	}
}
