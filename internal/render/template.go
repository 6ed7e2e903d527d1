package render

import (
	_ "embed"
	"fmt"
)

//go:embed assets/pdf_renderer.css
var rendererCSS string

//go:embed assets/table_scaler.js
var tableScalerScript string

//go:embed assets/block_scaler.js
var blockScalerScript string

// mathJaxConfig is the object literal assigned to window.MathJax before
// the CDN script loads. Inline and display delimiters must match the
// spans the block renderers emit.
const mathJaxConfig = `{"tex":{"inlineMath":[["\\(","\\)"],["$","$"]],"displayMath":[["$$","$$"],["\\[","\\]"]],"processEscapes":true,"processEnvironments":true,"processRefs":true},"chtml":{"scale":1.0,"minScale":0.5,"matchFontHeight":true,"linebreaks":{"automatic":true,"width":"container"}},"options":{"skipHtmlTags":["script","noscript","style","textarea","pre","code"],"ignoreHtmlClass":"tex2jax_ignore"}}`

const mathJaxCDN = "https://cdn.jsdelivr.net/npm/mathjax@3/es5/tex-chtml.js"

// GenerateFullHTML 组装最终 HTML 页面：内联 CSS、MathJax 配置与
// 表格/块缩放脚本。
func GenerateFullHTML(body, title string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="zh">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>%s</title>
  <style>%s</style>

  <script>
    MathJax = %s;
  </script>
  <script src="%s" async></script>
</head>
<body>
  %s
  %s
  %s
</body>
</html>`, EscapeText(title), rendererCSS, mathJaxConfig, mathJaxCDN, body, tableScalerScript, blockScalerScript)
}
