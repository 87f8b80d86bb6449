package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/cespare/xxhash/v2"

	"numwatch/internal/transport"
)

const maxTracked = 512

type rendered struct {
	body   uint64
	markup uint64
}

// Editor edits posted messages and skips edits that would not change anything.
type Editor struct {
	ad transport.Adapter

	mu   sync.Mutex
	last map[transport.MessageRef]rendered
}

func NewEditor(ad transport.Adapter) *Editor {
	return &Editor{ad: ad, last: map[transport.MessageRef]rendered{}}
}

// Remember records what a freshly sent message shows.
func (e *Editor) Remember(ref transport.MessageRef, body string, l Layout) {
	e.mu.Lock()
	if len(e.last) >= maxTracked {
		clear(e.last)
	}
	e.last[ref] = rendered{body: xxhash.Sum64String(body), markup: l.Hash()}
	e.mu.Unlock()
}

func (e *Editor) Forget(ref transport.MessageRef) {
	e.mu.Lock()
	delete(e.last, ref)
	e.mu.Unlock()
}

// Body replaces the caption (photo) or text of a message together with its keyboard.
func (e *Editor) Body(ctx context.Context, ref transport.MessageRef, photo bool, body string, l Layout) error {
	want := rendered{body: xxhash.Sum64String(body), markup: l.Hash()}
	if e.unchanged(ref, want) {
		return nil
	}
	rm, err := l.Markup()
	if err != nil {
		return err
	}
	opt := &transport.SendOptions{ParseMode: "HTML", ReplyMarkupAdapter: rm}
	if photo {
		err = e.ad.EditCaption(ctx, ref, body, opt)
	} else {
		err = e.ad.EditText(ctx, ref, body, opt)
	}
	return e.settle(ref, want, err)
}

// Markup replaces only the keyboard of a message.
func (e *Editor) Markup(ctx context.Context, ref transport.MessageRef, l Layout) error {
	e.mu.Lock()
	want, known := e.last[ref]
	e.mu.Unlock()
	want.markup = l.Hash()
	if known && e.unchanged(ref, want) {
		return nil
	}
	rm, err := l.Markup()
	if err != nil {
		return err
	}
	err = e.ad.EditMarkup(ctx, ref, &transport.SendOptions{ReplyMarkupAdapter: rm})
	if !known {
		if err == nil || errors.Is(err, transport.ErrNotModified) {
			return nil
		}
		return err
	}
	return e.settle(ref, want, err)
}

func (e *Editor) unchanged(ref transport.MessageRef, want rendered) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	got, ok := e.last[ref]
	return ok && got == want
}

func (e *Editor) settle(ref transport.MessageRef, want rendered, err error) error {
	if err != nil && !errors.Is(err, transport.ErrNotModified) {
		return err
	}
	e.mu.Lock()
	e.last[ref] = want
	e.mu.Unlock()
	return nil
}
