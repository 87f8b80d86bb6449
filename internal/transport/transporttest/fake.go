// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"sync"

	tele "gopkg.in/telebot.v4"

	"numwatch/internal/transport"
)

// Op is one recorded adapter call.
type Op struct {
	Kind     string // text | photo | edit_text | edit_caption | edit_markup | delete | answer
	Ref      transport.MessageRef
	Text     string
	PhotoURL string
	Markup   *tele.ReplyMarkup
}

// Adapter records every call. Edits of unchanged content return transport.ErrNotModified
// the way Telegram does.
type Adapter struct {
	mu     sync.Mutex
	nextID int
	ops    []Op
	state  map[int]Op

	// PhotoErr, when set, fails SendPhoto.
	PhotoErr error
}

var _ transport.Adapter = (*Adapter)(nil)

func New() *Adapter { return &Adapter{state: map[int]Op{}} }

func (a *Adapter) Start(ctx context.Context, _ chan<- transport.Update) error {
	<-ctx.Done()
	return nil
}

func (a *Adapter) Stop(context.Context) error { return nil }

func markup(opt *transport.SendOptions) *tele.ReplyMarkup {
	if opt == nil {
		return nil
	}
	rm, _ := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	return rm
}

func (a *Adapter) send(kind string, to transport.ChatTarget, text, photo string, opt *transport.SendOptions) transport.MessageRef {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	ref := transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: a.nextID}
	op := Op{Kind: kind, Ref: ref, Text: text, PhotoURL: photo, Markup: markup(opt)}
	a.ops = append(a.ops, op)
	a.state[ref.MessageID] = op
	return ref
}

func (a *Adapter) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return a.send("text", to, text, "", opt), nil
}

func (a *Adapter) SendPhoto(_ context.Context, to transport.ChatTarget, photoURL, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if a.PhotoErr != nil {
		return transport.MessageRef{}, a.PhotoErr
	}
	return a.send("photo", to, caption, photoURL, opt), nil
}

func (a *Adapter) edit(kind string, ref transport.MessageRef, text *string, opt *transport.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cur := a.state[ref.MessageID]
	next := cur
	if text != nil {
		next.Text = *text
	}
	if rm := markup(opt); rm != nil {
		next.Markup = rm
	}
	a.ops = append(a.ops, Op{Kind: kind, Ref: ref, Text: next.Text, Markup: next.Markup})
	if next.Text == cur.Text && sameMarkup(next.Markup, cur.Markup) {
		return transport.ErrNotModified
	}
	a.state[ref.MessageID] = next
	return nil
}

func sameMarkup(a, b *tele.ReplyMarkup) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.InlineKeyboard) != len(b.InlineKeyboard) {
		return false
	}
	for i := range a.InlineKeyboard {
		if len(a.InlineKeyboard[i]) != len(b.InlineKeyboard[i]) {
			return false
		}
		for j := range a.InlineKeyboard[i] {
			x, y := a.InlineKeyboard[i][j], b.InlineKeyboard[i][j]
			if x.Text != y.Text || x.Data != y.Data || x.URL != y.URL {
				return false
			}
		}
	}
	return true
}

func (a *Adapter) EditText(_ context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	return a.edit("edit_text", ref, &text, opt)
}

func (a *Adapter) EditCaption(_ context.Context, ref transport.MessageRef, caption string, opt *transport.SendOptions) error {
	return a.edit("edit_caption", ref, &caption, opt)
}

func (a *Adapter) EditMarkup(_ context.Context, ref transport.MessageRef, opt *transport.SendOptions) error {
	return a.edit("edit_markup", ref, nil, opt)
}

func (a *Adapter) Delete(_ context.Context, ref transport.MessageRef) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ops = append(a.ops, Op{Kind: "delete", Ref: ref})
	delete(a.state, ref.MessageID)
	return nil
}

func (a *Adapter) AnswerCallback(_ context.Context, callbackID, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ops = append(a.ops, Op{Kind: "answer", Text: text})
	return nil
}

// Ops returns a copy of every recorded call.
func (a *Adapter) Ops() []Op {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Op(nil), a.ops...)
}

// Count returns how many calls of kind were recorded.
func (a *Adapter) Count(kind string) int {
	n := 0
	for _, op := range a.Ops() {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the most recent call of kind.
func (a *Adapter) Last(kind string) (Op, bool) {
	ops := a.Ops()
	for i := len(ops) - 1; i >= 0; i-- {
		if ops[i].Kind == kind {
			return ops[i], true
		}
	}
	return Op{}, false
}

// Current returns the latest known content of a message.
func (a *Adapter) Current(messageID int) (Op, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	op, ok := a.state[messageID]
	return op, ok
}
