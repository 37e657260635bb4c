package libsys

import (
	"regexp"
	"strings"
	"unicode/utf8"
	"webopac/lib/htmlutil"
	"webopac/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	anonymousBanner = "登录我的图书馆"
	// emptyMarker is the icon the portal shows in place of an empty table.
	emptyMarker = ".iconerr"
)

// checkSession fails with CodeSessionExpired when the portal rendered the
// anonymous view of an authenticated page.
func checkSession(doc *goquery.Document) error {
	if htmlutil.Text(doc.Find("h5.box_bgcolor")) == anonymousBanner {
		return fail(CodeSessionExpired, "登录过期，请重新登录")
	}
	return nil
}

func hasEmptyMarker(doc *goquery.Document) bool {
	return doc.Find(emptyMarker).Length() > 0
}

// column maps the cell at a fixed index of a table row into a record. A
// []column[T] is the schema of a table, kept in lockstep with the portal's markup.
type column[T any] struct {
	index int
	set   func(record *T, cell *goquery.Selection)
}

// extractRows maps every row after the header into a record. Rows without
// any td (separators) are skipped, missing cells read as empty.
func extractRows[T any](rows *goquery.Selection, columns []column[T]) []T {
	out := []T{}
	rows.Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}
		var record T
		for _, col := range columns {
			col.set(&record, cells.Eq(col.index))
		}
		out = append(out, record)
	})
	return out
}

func text(sel *goquery.Selection) string {
	return htmlutil.Text(sel)
}

// labeled is one label/value pair of a definition list or a "label：value" cell.
type labeled struct {
	label string
	text  string
	value *goquery.Selection
}

// label maps a pair whose normalized label contains name into a record. name
// must itself be lower case without whitespace.
type label[T any] struct {
	name string
	set  func(record *T, pair labeled)
}

// applyLabels walks the pairs in document order. The first label matching a
// pair wins, unknown labels are skipped and a field seen twice keeps the last value.
func applyLabels[T any](record *T, pairs []labeled, labels []label[T]) {
	for _, pair := range pairs {
		for _, l := range labels {
			if textutil.MatchName(pair.label, []string{l.name}) {
				l.set(record, pair)
				break
			}
		}
	}
}

// definitionPairs reads <dl><dt>label</dt><dd>value</dd></dl> blocks.
func definitionPairs(dls *goquery.Selection) []labeled {
	var out []labeled
	dls.Each(func(_ int, dl *goquery.Selection) {
		dd := dl.Find("dd")
		out = append(out, labeled{
			label: text(dl.Find("dt")),
			text:  text(dd),
			value: dd,
		})
	})
	return out
}

// colonPairs reads cells of the form "label：value".
func colonPairs(cells *goquery.Selection) []labeled {
	var out []labeled
	cells.Each(func(_ int, cell *goquery.Selection) {
		content := text(cell)
		name, value, found := cutColon(content)
		if !found {
			return
		}
		out = append(out, labeled{
			label: name,
			text:  strings.TrimSpace(value),
			value: cell,
		})
	})
	return out
}

// cutColon splits on the first full-width or ascii colon.
func cutColon(s string) (before, after string, found bool) {
	idx := strings.IndexAny(s, "：:")
	if idx < 0 {
		return s, "", false
	}
	_, width := utf8.DecodeRuneInString(s[idx:])
	return s[:idx], s[idx+width:], true
}

var marcNoRegex = regexp.MustCompile(`marc_no=([^&#\s]+)`)

// marcNo recovers the catalog identifier from a link, nil when there is none.
func marcNo(href string) *string {
	groups := marcNoRegex.FindStringSubmatch(href)
	if len(groups) < 2 {
		return nil
	}
	value := groups[1]
	return &value
}

func marcNoOf(anchor *goquery.Selection) *string {
	return marcNo(htmlutil.Href(anchor))
}
