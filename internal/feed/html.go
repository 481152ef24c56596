package feed

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// stripHTML 剥离 HTML 标签，解码实体，只保留纯文本并合并连续空白。
func stripHTML(s string) string {
	if s == "" {
		return ""
	}

	// 行内标签两侧不额外插入空白，分词完全由原文的空白决定
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			b.Write(z.Text())
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// truncate 截断字符串到指定字符数（按 UTF-8 字符计算）。
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
