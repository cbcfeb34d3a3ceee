package parser

import (
	"html"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// embedRegex matches ![[file.png]], ![[file.png|300]] and ![[file.pdf#page=2]]
var embedRegex = regexp.MustCompile(`!\[\[([^\]|#]+)(?:#[^\]|]*)?(?:\|([^\]]*))?\]\]`)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".svg": true, ".avif": true, ".bmp": true,
}

// IsImage reports whether name has an image file extension
func IsImage(name string) bool {
	return imageExts[strings.ToLower(path.Ext(name))]
}

// isAttachment reports whether an embed points at a file rather than another note
func isAttachment(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext != "" && ext != ".md"
}

// ExtractEmbeds returns the attachment names embedded in content, in order
// of first appearance. Note transclusions and code are ignored.
func ExtractEmbeds(content string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range embedRegex.FindAllStringSubmatch(stripCode(content), -1) {
		name := strings.TrimSpace(m[1])
		if !isAttachment(name) || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// RewriteEmbeds replaces attachment embeds with HTML that points at stored
// media. Images become wp-image tagged <img> elements so the receiving side
// can find and remap them; other files become links. Embeds that resolve
// returns false for are left untouched.
func RewriteEmbeds(body string, resolve func(name string) (int64, bool), mediaURL func(id int64) string) string {
	return embedRegex.ReplaceAllStringFunc(body, func(match string) string {
		m := embedRegex.FindStringSubmatch(match)
		name := strings.TrimSpace(m[1])
		if !isAttachment(name) {
			return match
		}
		id, ok := resolve(name)
		if !ok {
			return match
		}

		src := html.EscapeString(mediaURL(id))
		if !IsImage(name) {
			label := strings.TrimSpace(m[2])
			if label == "" {
				label = path.Base(name)
			}
			return `<a href="` + src + `">` + html.EscapeString(label) + `</a>`
		}

		tag := `<img class="wp-image-` + strconv.FormatInt(id, 10) + `" src="` + src + `" alt="` + html.EscapeString(altText(name)) + `"`
		if w := width(m[2]); w > 0 {
			tag += ` width="` + strconv.Itoa(w) + `"`
		}
		return tag + `>`
	})
}

func altText(name string) string {
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}

// width reads "300" or "300x200" from an embed alias
func width(alias string) int {
	alias = strings.TrimSpace(alias)
	if i := strings.IndexByte(alias, 'x'); i > 0 {
		alias = alias[:i]
	}
	w, err := strconv.Atoi(alias)
	if err != nil || w <= 0 {
		return 0
	}
	return w
}
