package llm

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

type File struct {
	Path    string `json:"file_path"`
	Content string `json:"file_content"`
}

var (
	fenceRe    = regexp.MustCompile("(?s)```([^\\n`]*)\\n(.*?)```")
	filenameRe = regexp.MustCompile(`(?:filename|file|path)\s*=\s*"?([^"\s]+)"?`)
	headerRe   = regexp.MustCompile(`^\s*(?://|#|<!--)\s*(?:file:\s*)?([\w./@-]+\.\w+)\s*(?:-->)?\s*$`)
)

var extByLang = map[string]string{
	"tsx": "tsx", "jsx": "jsx", "ts": "ts", "typescript": "ts",
	"js": "js", "javascript": "js", "css": "css", "json": "json", "html": "html",
}

// ExtractFiles splits a completion into files. The path comes from the fence
// info string or a leading path comment; unnamed blocks are numbered.
// Later blocks for the same path replace earlier ones.
func ExtractFiles(content string) []File {
	matches := fenceRe.FindAllStringSubmatch(content, -1)
	files := make([]File, 0, len(matches))
	index := map[string]int{}

	for i, m := range matches {
		info := strings.TrimSpace(m[1])
		body := m[2]

		lang, p := splitInfo(info)
		if p == "" {
			if first, rest, ok := strings.Cut(body, "\n"); ok {
				if hm := headerRe.FindStringSubmatch(first); hm != nil {
					p = hm[1]
					body = rest
				}
			}
		}
		p = CleanPath(p)
		if p == "" {
			ext := extByLang[strings.ToLower(lang)]
			if ext == "" {
				ext = "txt"
			}
			if i == 0 {
				p = "app/page." + ext
			} else {
				p = fmt.Sprintf("snippet-%d.%s", i+1, ext)
			}
		}

		f := File{Path: p, Content: strings.TrimRight(body, "\n") + "\n"}
		if at, ok := index[p]; ok {
			files[at] = f
			continue
		}
		index[p] = len(files)
		files = append(files, f)
	}
	return files
}

// MainCode is the content of the first fenced block, or the whole text
// when there is none.
func MainCode(content string) string {
	if m := fenceRe.FindStringSubmatch(content); m != nil {
		return strings.TrimRight(m[2], "\n") + "\n"
	}
	return strings.TrimSpace(content)
}

func splitInfo(info string) (lang, p string) {
	if info == "" {
		return "", ""
	}
	if m := filenameRe.FindStringSubmatch(info); m != nil {
		p = m[1]
	}
	fields := strings.Fields(info)
	lang = fields[0]
	if l, rest, ok := strings.Cut(lang, ":"); ok {
		lang = l
		if p == "" {
			p = rest
		}
	}
	if strings.Contains(lang, "=") {
		lang = ""
	}
	if p == "" && len(fields) > 1 && strings.Contains(fields[1], ".") && !strings.Contains(fields[1], "=") {
		p = fields[1]
	}
	return lang, p
}

// CleanPath normalizes a relative file path and returns "" for anything
// that is absolute or escapes its root.
func CleanPath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\x00") {
		return ""
	}
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return ""
	}
	return c
}
