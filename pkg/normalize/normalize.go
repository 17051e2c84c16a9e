// Package normalize turns a raw article page into portable Markdown plus
// the list of media it references.
package normalize

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"mpscraper/pkg/logger"
	"mpscraper/pkg/models"
)

// ContentSelector is the element that holds an article body.
const ContentSelector = ".rich_media_content"

// Normalizer converts article HTML. It is stateless apart from the
// configured converter and safe to reuse across articles.
type Normalizer struct {
	converter *md.Converter
	logger    logger.Logger
}

// New creates a Normalizer producing ATX headings and fenced code blocks.
func New(log logger.Logger) *Normalizer {
	if log == nil {
		log = logger.NewNopLogger()
	}

	conv := md.NewConverter("", true, &md.Options{
		HeadingStyle:   "atx",
		CodeBlockStyle: "fenced",
	})
	conv.AddRules(md.Rule{
		Filter:      []string{"img"},
		Replacement: imageRule,
	})

	return &Normalizer{converter: conv, logger: log}
}

// imageRule renders lazy-loaded images using data-src before src.
func imageRule(_ string, selec *goquery.Selection, _ *md.Options) *string {
	src := mediaURL(selec, "data-src", "src")
	if src == "" {
		return md.String("")
	}

	alt := selec.AttrOr("alt", "")
	title := ""
	if t := selec.AttrOr("title", ""); t != "" {
		title = fmt.Sprintf(" %q", t)
	}
	return md.String(fmt.Sprintf("\n![%s](%s%s)\n", alt, src, title))
}

// Normalize extracts the article body and media. A page without a body
// element yields empty markup and media with no error; a conversion
// failure falls back to the raw body HTML.
func (n *Normalizer) Normalize(raw models.RawContent) models.NormalizedContent {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw.HTML))
	if err != nil {
		n.logger.WithError(err).WarnWithFields("unparseable article page", map[string]interface{}{
			"url": raw.URL,
		})
		return models.NormalizedContent{}
	}

	out := models.NormalizedContent{
		Title:  firstText(doc, "#activity-name", "h1"),
		Author: firstText(doc, "#js_author_name", ".rich_media_meta_text"),
	}

	region := doc.Find(ContentSelector).First()
	if region.Length() == 0 {
		n.logger.DebugWithFields("article has no content region", map[string]interface{}{
			"url": raw.URL,
		})
		return out
	}

	out.Images = collect(region.Find("img"), "data-src", "src")
	out.Videos = collect(region.Find("video, iframe"), "data-src", "src")

	body, err := region.Html()
	if err != nil {
		n.logger.WithError(err).Warn("failed to serialize content region")
		return out
	}
	out.HTML = strings.TrimSpace(body)

	markup, err := n.converter.ConvertString(body)
	if err != nil {
		n.logger.WithError(err).WarnWithFields("markdown conversion failed, keeping html", map[string]interface{}{
			"url": raw.URL,
		})
		out.Markup = out.HTML
		return out
	}
	out.Markup = strings.TrimSpace(markup)
	return out
}

// collect returns the first non-empty attribute of each element,
// deduplicated in first-seen order.
func collect(sel *goquery.Selection, attrs ...string) []string {
	seen := make(map[string]bool)
	var urls []string
	sel.Each(func(_ int, s *goquery.Selection) {
		u := mediaURL(s, attrs...)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	})
	return urls
}

func mediaURL(s *goquery.Selection, attrs ...string) string {
	for _, attr := range attrs {
		if v := strings.TrimSpace(s.AttrOr(attr, "")); v != "" {
			return completeURL(v)
		}
	}
	return ""
}

// completeURL turns protocol-relative URLs into https ones.
func completeURL(u string) string {
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}

func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}
