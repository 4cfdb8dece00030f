package command

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Render 将命令渲染为可直接粘贴到 bash 的字符串，仅用于日志
func Render(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	for _, s := range append([]string{name}, args...) {
		parts = append(parts, quote(s))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		// 含有 NUL 等无法表示的字符
		return "'<unprintable>'"
	}
	return q
}
