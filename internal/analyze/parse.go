package analyze

import (
	"strings"

	"github.com/tidwall/gjson"
)

// FallbackCategory is used when the model suggests no usable category.
const FallbackCategory = "Uncategorized"

// reply is the JSON object every prompt asks for
type reply struct {
	Mode       string
	Text       string
	Categories []string
}

// parseReply decodes the model output. It never fails: malformed or empty
// output yields an empty text and the fallback category, and ok is false.
//
// Models do not always follow the requested shape exactly, so a comma
// separated "categories" string and a "description" field are accepted too.
func parseReply(raw string, maxCategories int) (r reply, ok bool) {
	body := strings.TrimSpace(raw)
	if !gjson.Valid(body) {
		body = stripCodeFence(body)
	}
	if body != "" && gjson.Valid(body) {
		doc := gjson.Parse(body)
		if doc.IsObject() {
			ok = true
			r.Mode = doc.Get("mode").String()
			r.Text = doc.Get("text").String()
			if r.Text == "" {
				r.Text = doc.Get("description").String()
			}
			r.Categories = categoriesOf(doc.Get("categories"))
		}
	}

	r.Mode = strings.ToLower(strings.TrimSpace(r.Mode))
	r.Text = strings.TrimSpace(r.Text)
	r.Categories = cleanCategories(r.Categories, maxCategories)
	return r, ok
}

func categoriesOf(v gjson.Result) []string {
	switch {
	case v.IsArray():
		var out []string
		for _, item := range v.Array() {
			if item.Type == gjson.String {
				out = append(out, item.String())
			}
		}
		return out
	case v.Type == gjson.String:
		return strings.Split(v.String(), ",")
	default:
		return nil
	}
}

// stripCodeFence removes a Markdown code fence the model sometimes wraps
// around its JSON. The body runs to the last fence so fences quoted inside
// the JSON text survive.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// drop the language tag, e.g. ```json
		if tag := strings.TrimSpace(rest[:nl]); !strings.ContainsAny(tag, "{[") {
			rest = rest[nl+1:]
		}
	}
	if end := strings.LastIndex(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// cleanCategories trims labels, drops blanks and case-insensitive duplicates,
// and keeps at most max of them.
func cleanCategories(in []string, max int) []string {
	if max < 1 {
		max = 1
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, max)
	for _, c := range in {
		c = strings.Join(strings.Fields(c), " ")
		if c == "" {
			continue
		}
		key := strings.ToLower(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
		if len(out) == max {
			break
		}
	}
	if len(out) == 0 {
		out = append(out, FallbackCategory)
	}
	return out
}
