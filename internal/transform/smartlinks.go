package transform

import (
	"html"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/vonshlovens/spokesync/internal/domain"
)

var (
	// matches only spans carrying a data-smart-* attribute
	spanRe = regexp.MustCompile(`(?is)<span\b([^>]*\bdata-smart-[^>]*)>(.*?)</span>`)
	attrRe = regexp.MustCompile(`(?is)([a-z][a-z0-9_-]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
)

const (
	attrSmartURL   = "data-smart-url"
	attrSmartLinks = "data-smart-links"
)

// ResolveSmartLinks replaces smart-link placeholders with anchors for conn.
//
//	<span data-smart-url="/path">Text</span>      -> <a href="{base}/path">Text</a>
//	<span data-smart-links='{"id":"url"}'>Text</span> -> anchor, or plain Text without an entry
//
// Placeholders that cannot be resolved are left as they are.
func ResolveSmartLinks(s string, conn *domain.Connection) string {
	if !strings.Contains(s, "data-smart-") {
		return s
	}
	return spanRe.ReplaceAllStringFunc(s, func(match string) string {
		m := spanRe.FindStringSubmatch(match)
		attrs := parseAttrs(m[1])
		text := m[2]

		if raw, ok := attrs[attrSmartURL]; ok {
			href, ok := resolvePath(raw, conn.BaseURL)
			if !ok {
				return match
			}
			return anchor(href, text)
		}

		if raw, ok := attrs[attrSmartLinks]; ok {
			href, ok := lookupLink(raw, conn)
			if !ok {
				return match
			}
			if href == "" {
				return text
			}
			return anchor(href, text)
		}

		return match
	})
}

func parseAttrs(s string) map[string]string {
	out := make(map[string]string)
	for _, m := range attrRe.FindAllStringSubmatch(s, -1) {
		v := m[2]
		if v == "" {
			v = m[3]
		}
		out[strings.ToLower(m[1])] = html.UnescapeString(v)
	}
	return out
}

func resolvePath(raw, base string) (string, bool) {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "", false
	}
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p, true
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return domain.NormalizeBaseURL(base) + p, true
}

// lookupLink finds this destination's URL in a smart-links map keyed by
// connection id, name or base URL. ok is false when the map is malformed.
func lookupLink(raw string, conn *domain.Connection) (href string, ok bool) {
	if !gjson.Valid(raw) {
		return "", false
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return "", false
	}

	links := make(map[string]string)
	parsed.ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String {
			links[key.String()] = strings.TrimSpace(value.String())
		}
		return true
	})

	for _, k := range []string{conn.ID, conn.Name, domain.NormalizeBaseURL(conn.BaseURL)} {
		if k == "" {
			continue
		}
		if u := links[k]; u != "" {
			return u, true
		}
	}
	return "", true
}

func anchor(href, text string) string {
	return `<a href="` + html.EscapeString(href) + `">` + text + `</a>`
}
