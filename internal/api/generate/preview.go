package generate

import (
	"bytes"
	"html/template"
	"regexp"
	"strings"
)

var (
	importRe        = regexp.MustCompile(`(?m)^\s*import\s[^\n]*$\n?`)
	useClientRe     = regexp.MustCompile(`(?m)^\s*['"]use (?:client|server)['"];?\s*$\n?`)
	exportFuncRe    = regexp.MustCompile(`export\s+default\s+(?:async\s+)?function\s+([A-Za-z_$][\w$]*)`)
	exportAnonRe    = regexp.MustCompile(`export\s+default\s+(?:async\s+)?function\s*\(`)
	exportIdentRe   = regexp.MustCompile(`(?m)^\s*export\s+default\s+([A-Za-z_$][\w$]*)\s*;?\s*$`)
	exportKeywordRe = regexp.MustCompile(`(?m)^(\s*)export\s+(const|let|var|function|class|async|interface|type)\b`)
)

const previewComponent = "App"

// PrepareComponent turns a module-style component into a script that a
// browser Babel build can run. It returns the rewritten source and the
// name of the component to mount.
func PrepareComponent(code string) (string, string) {
	src := useClientRe.ReplaceAllString(code, "")
	src = importRe.ReplaceAllString(src, "")

	name := previewComponent
	switch {
	case exportFuncRe.MatchString(src):
		name = exportFuncRe.FindStringSubmatch(src)[1]
		src = exportFuncRe.ReplaceAllString(src, "function $1")
	case exportAnonRe.MatchString(src):
		src = exportAnonRe.ReplaceAllString(src, "function "+previewComponent+"(")
	case exportIdentRe.MatchString(src):
		name = exportIdentRe.FindStringSubmatch(src)[1]
		src = exportIdentRe.ReplaceAllString(src, "")
	}
	src = exportKeywordRe.ReplaceAllString(src, "$1$2")
	return strings.TrimSpace(src), name
}

var previewTmpl = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Preview</title>
<script src="https://cdn.tailwindcss.com"></script>
<script crossorigin src="https://unpkg.com/react@18/umd/react.development.js"></script>
<script crossorigin src="https://unpkg.com/react-dom@18/umd/react-dom.development.js"></script>
<script src="https://unpkg.com/@babel/standalone/babel.min.js"></script>
</head>
<body>
<div id="root"></div>
<script>
window.__previewSource = {{.Source}};
window.__previewComponent = {{.Component}};
</script>
<script>
(function () {
  var root = document.getElementById("root");
  try {
    var prelude = "const { useState, useEffect, useMemo, useRef, useCallback, useReducer, useContext, createContext, Fragment } = React;\n";
    var out = Babel.transform(prelude + window.__previewSource + "\nwindow.__previewMount = " + window.__previewComponent + ";", {
      presets: ["typescript", "react"],
      filename: "preview.tsx"
    }).code;
    new Function(out)();
    ReactDOM.createRoot(root).render(React.createElement(window.__previewMount));
  } catch (err) {
    root.innerHTML = "";
    var pre = document.createElement("pre");
    pre.style.color = "#b91c1c";
    pre.style.padding = "1rem";
    pre.textContent = String(err && err.message ? err.message : err);
    root.appendChild(pre);
  }
})();
</script>
</body>
</html>
`))

// RenderPreview builds a standalone HTML page that renders code.
func RenderPreview(code string) (string, error) {
	src, name := PrepareComponent(code)
	var buf bytes.Buffer
	if err := previewTmpl.Execute(&buf, struct {
		Source    string
		Component string
	}{src, name}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
