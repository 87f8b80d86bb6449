package tgui

import (
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v4"
)

// MaxCallbackDataLen is Telegram's callback_data limit in bytes.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Inline builds an inline keyboard row by row.
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
	err  error
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a row. Oversized callback data is recorded and reported by Err.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	for _, b := range btn {
		if len(b.Data) > MaxCallbackDataLen && i.err == nil {
			i.err = fmt.Errorf("%w: %q", ErrCallbackDataTooLong, b.Data)
		}
	}
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Grid appends buttons n per row.
func (i *Inline) Grid(n int, btn []tele.Btn) *Inline {
	if n <= 0 {
		n = 1
	}
	for start := 0; start < len(btn); start += n {
		end := min(start+n, len(btn))
		i.Row(btn[start:end]...)
	}
	return i
}

func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

func (i *Inline) Rows() int { return len(i.rows) }

func (i *Inline) Err() error { return i.err }

// Btn creates a callback button with raw callback_data.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

func URLBtn(text, url string) tele.Btn {
	return tele.Btn{Text: text, URL: url}
}
