package tgui

import "html"

// H is text already escaped for Telegram's HTML parse mode.
type H string

func (h H) String() string { return string(h) }

// Esc escapes s for HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

// Raw trusts s as-is.
func Raw(s string) H { return H(s) }

func tag(name string, s string) H { return H("<" + name + ">" + html.EscapeString(s) + "</" + name + ">") }

// B renders bold text.
func B(s string) H { return tag("b", s) }

// Code renders monospace text; Telegram clients copy it on tap.
func Code(s string) H { return tag("code", s) }
