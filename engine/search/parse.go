package search

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cafescout/cafescout/engine/domain"
)

// parseSearchResults extracts one PostRecord per result card. Cards with
// missing parts yield records with empty fields rather than errors.
func parseSearchResults(r io.Reader) ([]domain.PostRecord, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse search html: %w", err)
	}

	var out []domain.PostRecord
	doc.Find("ul.lst_view li.bx").Each(func(_ int, card *goquery.Selection) {
		rec := domain.PostRecord{Comments: []string{}}

		if title := card.Find(".title_link").First(); title.Length() > 0 {
			rec.Title = text(title)
			if href, ok := title.Attr("href"); ok && href != "" {
				rec.URL = domain.NormalizeURL(href)
				rec.CafeID, rec.ArticleID = domain.ParseArticleURL(rec.URL)
			}
		}
		rec.BodySnippet = text(card.Find(".dsc_link").First())

		if name := card.Find(".user_info .name").First(); name.Length() > 0 {
			rec.Author = text(name)
			if href, ok := name.Attr("href"); ok {
				rec.AuthorURL = href
			}
		}
		rec.PostedAt = text(card.Find(".user_info .sub").First())

		card.Find(".comment_box .flick_bx").Each(func(_ int, c *goquery.Selection) {
			if t := c.Find(".txt").First(); t.Length() > 0 {
				rec.Comments = append(rec.Comments, text(t))
			}
		})
		out = append(out, rec)
	})
	return out, nil
}

func text(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}
