package media

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Reference shapes recognised in document bodies:
//
//	[gallery ids="1,2,3"]                      legacy shortcode
//	<!-- wp:gallery {"ids":[1,2]} -->          structured block, id list
//	<!-- wp:image {"id":3} -->                 structured block, single id
//	<img data-id="4">                          block markup attribute
//	<img class="wp-image-5">                   block markup class
var (
	shortcodeRe = regexp.MustCompile(`(\[gallery\b[^\]]*?\bids=["'])([0-9,\s]*)(["'][^\]]*\])`)
	blockRe     = regexp.MustCompile(`(?s)(<!--\s*wp:(?:gallery|image)\s+)(\{.*?\})(\s*/?-->)`)
	dataIDRe    = regexp.MustCompile(`(\bdata-id=["'])(\d+)(["'])`)
	wpImageRe   = regexp.MustCompile(`(\bwp-image-)(\d+)\b`)
)

type hit struct {
	pos int
	id  int64
}

// HarvestReferences returns the media ids referenced by body, in order of
// first appearance and without duplicates
func HarvestReferences(body string) []int64 {
	var hits []hit

	for _, m := range shortcodeRe.FindAllStringSubmatchIndex(body, -1) {
		for _, id := range parseIDList(body[m[4]:m[5]]) {
			hits = append(hits, hit{pos: m[0], id: id})
		}
	}
	for _, m := range blockRe.FindAllStringSubmatchIndex(body, -1) {
		for _, id := range blockIDs(body[m[4]:m[5]]) {
			hits = append(hits, hit{pos: m[0], id: id})
		}
	}
	for _, re := range []*regexp.Regexp{dataIDRe, wpImageRe} {
		for _, m := range re.FindAllStringSubmatchIndex(body, -1) {
			if id, err := strconv.ParseInt(body[m[4]:m[5]], 10, 64); err == nil && id > 0 {
				hits = append(hits, hit{pos: m[0], id: id})
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	seen := make(map[int64]bool, len(hits))
	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		if !seen[h.id] {
			seen[h.id] = true
			ids = append(ids, h.id)
		}
	}
	return ids
}

// RewriteBody replaces every mapped source id with its destination id across
// all reference shapes. Ids missing from idMap are left as they are and
// returned in order of appearance.
func RewriteBody(body string, idMap map[int64]int64) (string, []int64) {
	var unmapped []int64
	seen := make(map[int64]bool)

	mapID := func(raw string) string {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || id <= 0 {
			return raw
		}
		if dst, ok := idMap[id]; ok {
			return strconv.FormatInt(dst, 10)
		}
		if !seen[id] {
			seen[id] = true
			unmapped = append(unmapped, id)
		}
		return raw
	}

	body = shortcodeRe.ReplaceAllStringFunc(body, func(match string) string {
		sm := shortcodeRe.FindStringSubmatch(match)
		parts := strings.Split(sm[2], ",")
		for i, p := range parts {
			if strings.TrimSpace(p) != "" {
				parts[i] = mapID(p)
			}
		}
		return sm[1] + strings.Join(parts, ",") + sm[3]
	})

	body = blockRe.ReplaceAllStringFunc(body, func(match string) string {
		sm := blockRe.FindStringSubmatch(match)
		attrs := sm[2]
		if !gjson.Valid(attrs) {
			return match
		}
		if ids := gjson.Get(attrs, "ids"); ids.IsArray() {
			for i, v := range ids.Array() {
				if v.Type != gjson.Number {
					continue
				}
				mapped := mapID(v.Raw)
				if mapped != v.Raw {
					if out, err := sjson.SetRaw(attrs, "ids."+strconv.Itoa(i), mapped); err == nil {
						attrs = out
					}
				}
			}
		}
		if id := gjson.Get(attrs, "id"); id.Type == gjson.Number {
			mapped := mapID(id.Raw)
			if mapped != id.Raw {
				if out, err := sjson.SetRaw(attrs, "id", mapped); err == nil {
					attrs = out
				}
			}
		}
		return sm[1] + attrs + sm[3]
	})

	for _, re := range []*regexp.Regexp{dataIDRe, wpImageRe} {
		body = re.ReplaceAllStringFunc(body, func(match string) string {
			sm := re.FindStringSubmatch(match)
			out := sm[1] + mapID(sm[2])
			if len(sm) > 3 {
				out += sm[3]
			}
			return out
		})
	}

	return body, unmapped
}

// ReplaceURLs swaps literal source URLs for destination URLs. A URL only
// matches when it is not immediately followed by another URL character, so
// /media/1 never rewrites inside /media/10.
func ReplaceURLs(body string, urls map[string]string) string {
	if len(urls) == 0 {
		return body
	}

	keys := make([]string, 0, len(urls))
	for from, to := range urls {
		if from != "" && to != "" && from != to {
			keys = append(keys, from)
		}
	}
	if len(keys) == 0 {
		return body
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = regexp.QuoteMeta(k)
	}
	re := regexp.MustCompile(`(` + strings.Join(quoted, "|") + `)([^0-9A-Za-z_]|$)`)

	return re.ReplaceAllStringFunc(body, func(match string) string {
		sm := re.FindStringSubmatch(match)
		return urls[sm[1]] + sm[2]
	})
}

func parseIDList(list string) []int64 {
	var ids []int64
	for _, part := range strings.Split(list, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func blockIDs(attrs string) []int64 {
	if !gjson.Valid(attrs) {
		return nil
	}
	var ids []int64
	for _, v := range gjson.Get(attrs, "ids").Array() {
		if id := v.Int(); id > 0 {
			ids = append(ids, id)
		}
	}
	if id := gjson.Get(attrs, "id").Int(); id > 0 {
		ids = append(ids, id)
	}
	return ids
}
