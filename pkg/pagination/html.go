package pagination

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/caesar700/roblox-donation-proxy/pkg/gamepass"
)

// Selectors for the legacy game pass partial.
const (
	htmlPassSelector = ".real-game-pass"
	htmlLinkSelector = "a[href*='/game-pass/']"
	htmlNameSelector = ".store-card-name"
)

var passIDPattern = regexp.MustCompile(`/game-pass/(\d+)`)

// HTMLPassesParser scrapes the legacy game pass partial render. The markup
// lists neither price nor creator, so records are marked Unpriced. The
// partial is offset-paginated and never carries a cursor.
func HTMLPassesParser() Parser[gamepass.RawPass] {
	return ParserFunc[gamepass.RawPass](func(body []byte) (Page[gamepass.RawPass], error) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return Page[gamepass.RawPass]{}, err
		}

		var page Page[gamepass.RawPass]
		doc.Find(htmlPassSelector).Each(func(_ int, s *goquery.Selection) {
			raw := gamepass.RawPass{Unpriced: true}

			if href, ok := s.Find(htmlLinkSelector).First().Attr("href"); ok {
				if m := passIDPattern.FindStringSubmatch(href); m != nil {
					raw.ID, _ = strconv.ParseInt(m[1], 10, 64)
				}
			}

			nameSel := s.Find(htmlNameSelector).First()
			name, ok := nameSel.Attr("title")
			if !ok || strings.TrimSpace(name) == "" {
				name = nameSel.Text()
			}
			if name = strings.TrimSpace(name); name != "" {
				raw.Name = &name
			}

			page.Items = append(page.Items, raw)
		})
		return page, nil
	})
}
