package crawler

import (
	"fmt"
	"path"
	"strings"
)

// Storage prefixes for the three artifact kinds.
const (
	DocumentPrefix = "articles/"
	ImagePrefix    = "images/"
	RecordPrefix   = "json/"

	documentExt = ".html"
	imageExt    = ".jpg"
	recordExt   = ".json"

	// literal percents and underscores are escaped so the separator substitution stays reversible.
	escapedPercent    = "%25"
	escapedUnderscore = "%5F"
)

var (
	keyEscaper   = strings.NewReplacer("%", escapedPercent, "_", escapedUnderscore, "/", "_")
	keyUnescaper = strings.NewReplacer(escapedUnderscore, "_", escapedPercent, "%")
)

// KeyScheme derives storage keys from article URLs and back.
type KeyScheme struct {
	// SitePrefix is stripped from article URLs, e.g. "https://www.abc.net.au/".
	SitePrefix string
}

// NewKeyScheme returns a scheme whose prefix always ends in a slash.
func NewKeyScheme(sitePrefix string) KeyScheme {
	if sitePrefix != "" && !strings.HasSuffix(sitePrefix, "/") {
		sitePrefix += "/"
	}
	return KeyScheme{SitePrefix: sitePrefix}
}

// DocumentKey strips the site prefix and substitutes path separators.
// "https://www.abc.net.au/news/2012-01-12/csu/3769250" becomes "news_2012-01-12_csu_3769250".
func (s KeyScheme) DocumentKey(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		rawURL = rawURL[:i]
	}
	if s.SitePrefix == "" || !strings.HasPrefix(rawURL, s.SitePrefix) {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, rawURL)
	}
	rest := strings.Trim(strings.TrimPrefix(rawURL, s.SitePrefix), "/")
	if rest == "" {
		return "", fmt.Errorf("%w: %s has no article path", ErrForeignURL, rawURL)
	}
	return keyEscaper.Replace(rest), nil
}

// URLForKey inverts DocumentKey: separators are re-expanded and the site prefix re-prepended.
// Leading and trailing slashes are not part of the key and are not restored.
func (s KeyScheme) URLForKey(key string) string {
	return s.SitePrefix + keyUnescaper.Replace(strings.ReplaceAll(key, "_", "/"))
}

// DocumentPath is the object key of a stored raw document.
func DocumentPath(key string) string {
	return DocumentPrefix + key + documentExt
}

// RecordPath is the object key of a serialized Record.
func RecordPath(key string) string {
	return RecordPrefix + key + recordExt
}

// ImagePath is the object key of an image identified by its CDN id.
func ImagePath(id string) string {
	return ImagePrefix + id + imageExt
}

// LocalImageRef is the in-document reference that replaces a CDN image URL.
func LocalImageRef(id string) string {
	return "../images/" + id + imageExt
}

// KeyFromDocumentPath reverses DocumentPath. ok is false for anything that is not a stored document.
func KeyFromDocumentPath(objectKey string) (string, bool) {
	if !strings.HasPrefix(objectKey, DocumentPrefix) || path.Ext(objectKey) != documentExt {
		return "", false
	}
	key := strings.TrimSuffix(strings.TrimPrefix(objectKey, DocumentPrefix), documentExt)
	if key == "" || strings.Contains(key, "/") {
		return "", false
	}
	return key, true
}
