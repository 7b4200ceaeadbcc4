package worker

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/topic-harvester/internal/crawler"
)

// DefaultImageCDNPrefix is where article images are served from.
const DefaultImageCDNPrefix = "https://live-production.wcms.abc-cdn.net.au"

var (
	widthHint  = regexp.MustCompile(`width=(\d{3})`)
	heightHint = regexp.MustCompile(`height=(\d{3})`)
)

type imageRef struct {
	id  string
	url string
}

type imageStats struct {
	stored int
	failed int
}

type imageLocalizer struct {
	prefix string
	idExpr *regexp.Regexp
}

func newImageLocalizer(prefix string) *imageLocalizer {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultImageCDNPrefix
	}
	return &imageLocalizer{
		prefix: prefix,
		idExpr: regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `/([a-z0-9]+)`),
	}
}

// rewrite points every CDN image inside a figure at its local copy and returns the distinct images to fetch.
// Size hints in the CDN query string are kept as width and height attributes.
func (l *imageLocalizer) rewrite(doc *goquery.Document) []imageRef {
	var refs []imageRef
	seen := make(map[string]struct{})
	doc.Find("figure img[data-src]").Each(func(_ int, img *goquery.Selection) {
		src := img.AttrOr("data-src", "")
		m := l.idExpr.FindStringSubmatch(src)
		if m == nil {
			return
		}
		id := m[1]
		if w := widthHint.FindStringSubmatch(src); w != nil {
			img.SetAttr("width", w[1])
		}
		if h := heightHint.FindStringSubmatch(src); h != nil {
			img.SetAttr("height", h[1])
		}
		local := crawler.LocalImageRef(id)
		img.SetAttr("data-src", local)
		img.SetAttr("src", local)

		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		refs = append(refs, imageRef{id: id, url: l.prefix + "/" + id})
	})
	return refs
}
