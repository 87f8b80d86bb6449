package fetch

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"numwatch/internal/monitor"
)

const (
	singleSelector = ".latest-added__title a"
	listSelector   = ".numbutton"

	// fallbackFlagIndex is where the flag sits on single-number pages without alt text.
	fallbackFlagIndex = 18
)

// Parse extracts tokens and the flag image from a page.
// Unknown-type pages are tried as single first, then as lists.
func Parse(doc *goquery.Document, pageURL string, t monitor.ContentType) (monitor.Content, string) {
	switch t {
	case monitor.TypeSingle:
		return parseSingle(doc)
	case monitor.TypeMultiple:
		return parseList(doc, pageURL)
	default:
		if c, img := parseSingle(doc); !c.Empty() {
			return c, img
		}
		return parseList(doc, pageURL)
	}
}

func parseSingle(doc *goquery.Document) (monitor.Content, string) {
	a := doc.Find(singleSelector).First()
	if a.Length() == 0 {
		return monitor.Content{}, ""
	}
	return monitor.Text(strings.TrimSpace(a.Text())), singleFlag(doc)
}

func imgSrc(s *goquery.Selection) string {
	if v, ok := s.Attr("data-lazy-src"); ok && v != "" {
		return v
	}
	v, _ := s.Attr("src")
	return v
}

func singleFlag(doc *goquery.Document) string {
	imgs := doc.Find("img")
	var flag string
	imgs.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		alt, _ := s.Attr("alt")
		src := imgSrc(s)
		if strings.Contains(strings.ToLower(alt), "country flag") && strings.HasSuffix(src, ".png") {
			flag = src
			return false
		}
		return true
	})
	if flag != "" {
		return flag
	}
	if imgs.Length() > fallbackFlagIndex {
		if src := imgSrc(imgs.Eq(fallbackFlagIndex)); strings.HasSuffix(src, ".png") {
			return src
		}
	}
	imgs.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if src := imgSrc(s); strings.HasSuffix(src, ".png") {
			flag = src
			return false
		}
		return true
	})
	return flag
}

func parseList(doc *goquery.Document, pageURL string) (monitor.Content, string) {
	var values []string
	doc.Find(listSelector).Each(func(_ int, s *goquery.Selection) {
		if v := strings.TrimSpace(s.Text()); v != "" {
			values = append(values, v)
		}
	})
	if len(values) == 0 {
		return monitor.Content{}, ""
	}

	var flag string
	if imgs := doc.Find("img"); imgs.Length() > 1 {
		flag = imgSrc(imgs.Eq(1))
		if flag != "" && !strings.HasPrefix(flag, "http://") && !strings.HasPrefix(flag, "https://") {
			flag = grandparent(pageURL) + flag
		}
	}
	return monitor.List(values...), flag
}

// grandparent drops the last two path segments: "https://h/a/b" becomes "https://h".
func grandparent(u string) string {
	for range 2 {
		i := strings.LastIndex(u, "/")
		if i < 0 {
			return u
		}
		u = u[:i]
	}
	return u
}
