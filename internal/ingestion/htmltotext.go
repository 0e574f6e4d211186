package ingestion

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/devflowinc/trieve-sub001/internal/errs"
)

// HTMLToText extracts readable text from an HTML fragment (spec §4.E
// step 1 "HTML -> text"), grounded on the preprocessing pipeline's
// goquery-based tag walk: headings, paragraphs, list items and table
// cells are kept and joined on blank lines; everything else (scripts,
// styles, nav chrome) is dropped by only ever visiting the allowed tags.
//
// The fragment is first passed through charset.NewReader so chunks
// pasted from non-UTF-8 sources (declared via a meta charset tag or
// Content-Type-like sniffing) decode cleanly instead of mangling into
// replacement characters.
func HTMLToText(html string) (string, error) {
	decoded, err := charset.NewReader(strings.NewReader(html), "text/html")
	if err != nil {
		return "", errs.BadRequest("ingestion_invalid_html", "failed to decode chunk html", err)
	}
	doc, err := goquery.NewDocumentFromReader(decoded)
	if err != nil {
		return "", errs.BadRequest("ingestion_invalid_html", "failed to parse chunk html", err)
	}

	var blocks []string
	seen := make(map[string]bool)
	doc.Find("h1,h2,h3,h4,h5,h6,p,li,pre,blockquote,td,th").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(collapseSpace(sel.Text()))
		if text == "" || seen[text] {
			return
		}
		seen[text] = true

		switch goquery.NodeName(sel) {
		case "h1":
			text = "# " + text
		case "h2":
			text = "## " + text
		case "h3", "h4", "h5", "h6":
			text = "### " + text
		case "li":
			text = "- " + text
		}
		blocks = append(blocks, text)
	})
	return strings.Join(blocks, "\n\n"), nil
}

func collapseSpace(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		if r == '\n' || r == '\t' || r == '\r' {
			r = ' '
		}
		if r == ' ' {
			if lastSpace {
				continue
			}
			lastSpace = true
		} else {
			lastSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
