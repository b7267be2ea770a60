package util

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

//go:embed version.txt
var embeddedVersion string

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9]+`)
	domainPattern    = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)
	tagPattern       = regexp.MustCompile(`<[^>]*>`)
	uuidPattern      = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
)

func GetVersion() string {
	return strings.TrimSpace(embeddedVersion)
}

func GetNameAndVersion() string {
	return fmt.Sprintf("%s / %s", Name, GetVersion())
}

// NormalizeInput makes single-line text for names and titles.
func NormalizeInput(text string) string {
	normalized := strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
	return strings.TrimSpace(normalized)
}

func PrettyPrint(i interface{}) string {
	s, _ := json.MarshalIndent(i, "", " ")
	return string(s)
}

// Slugify lower-cases a title, strips accents and collapses everything that
// is not a letter or digit into single dashes. Returns "series" for input
// that has nothing usable left.
func Slugify(title string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(strings.ToLower(title)) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	slug := strings.Trim(slugInvalidChars.ReplaceAllString(b.String(), "-"), "-")
	if len(slug) > 80 {
		slug = strings.TrimRight(slug[:80], "-")
	}
	if slug == "" {
		return "series"
	}
	return slug
}

// NormalizeDomain lower-cases and trims a domain and reports whether the
// result is a syntactically valid hostname.
func NormalizeDomain(domain string) (string, bool) {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimSuffix(d, ".")
	if len(d) == 0 || len(d) > 253 {
		return d, false
	}
	return d, domainPattern.MatchString(d)
}

// DomainFromURI returns the lower-cased host of an absolute URI, without port.
func DomainFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// StripTags removes HTML tags from remote content and unescapes entities.
func StripTags(content string) string {
	return strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(content, "")))
}

// ExtractUUID returns the last UUID found in a local object URI.
func ExtractUUID(uri string) string {
	matches := uuidPattern.FindAllString(uri, -1)
	if len(matches) == 0 {
		return ""
	}
	return strings.ToLower(matches[len(matches)-1])
}
