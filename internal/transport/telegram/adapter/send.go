package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "numwatch/internal/transport"
)

const (
	textLimit    = 4000
	captionLimit = 1024
)

// splitText breaks s into chunks of at most limit runes. Cuts land on line
// breaks where possible; an over-long line is cut hard, but never inside an HTML tag.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	if len([]rune(s)) <= limit {
		return []string{s}
	}

	var (
		out []string
		cur []rune
	)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}
	for _, line := range strings.Split(s, "\n") {
		r := []rune(line)
		if len(cur) > 0 && len(cur)+1+len(r) > limit {
			flush()
		}
		for len(r) > limit {
			flush()
			cut := hardCut(r, limit)
			out = append(out, string(r[:cut]))
			r = r[cut:]
		}
		if len(cur) > 0 {
			cur = append(cur, '\n')
		}
		cur = append(cur, r...)
	}
	flush()
	return out
}

// hardCut returns a cut point <= limit that is not inside <...>.
func hardCut(r []rune, limit int) int {
	for i := limit - 1; i > 0; i-- {
		switch r[i] {
		case '>':
			return limit
		case '<':
			return i
		}
	}
	return limit
}

// fitCaption drops trailing lines until caption fits Telegram's caption limit.
// Whole lines are dropped so HTML stays balanced.
func fitCaption(caption string) string {
	if len([]rune(caption)) <= captionLimit {
		return caption
	}
	lines := strings.Split(caption, "\n")
	for len(lines) > 1 {
		lines = lines[:len(lines)-1]
		if s := strings.Join(lines, "\n") + "\n…"; len([]rune(s)) <= captionLimit {
			return s
		}
	}
	return string([]rune(caption)[:captionLimit])
}

// wait blocks until the outbound limiter admits one call.
func (a *Adapter) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

// mapErr turns Telegram's "message is not modified" rejection into kit.ErrNotModified.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, tele.ErrSameMessageContent) || strings.Contains(strings.ToLower(err.Error()), "message is not modified") {
		return fmt.Errorf("%w: %v", kit.ErrNotModified, err)
	}
	return err
}

func markupOf(opt *kit.SendOptions) *tele.ReplyMarkup {
	if opt == nil || opt.ReplyMarkupAdapter == nil {
		return nil
	}
	rm, _ := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	return rm
}

func editable(ref kit.MessageRef) *tele.Message {
	return &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
}

func sendOptions(opt *kit.SendOptions, threadID int, markup bool) *tele.SendOptions {
	so := &tele.SendOptions{ThreadID: threadID}
	if opt != nil {
		so.ParseMode = opt.ParseMode
		so.DisableWebPagePreview = opt.DisablePreview
		if markup {
			so.ReplyMarkup = markupOf(opt)
		}
	}
	return so
}

// sendChunks posts chunks in order. Markup rides on the first one only.
func (a *Adapter) sendChunks(ctx context.Context, to kit.ChatTarget, chunks []string, opt *kit.SendOptions, markup bool) (kit.MessageRef, error) {
	chat := &tele.Chat{ID: to.ChatID}
	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := a.wait(ctx); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, sendOptions(opt, to.ThreadID, markup && i == 0))
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return a.sendChunks(ctx, to, splitText(text, textLimit), opt, true)
}

// SendPhoto sends a photo by URL. Telegram fetches the image itself.
func (a *Adapter) SendPhoto(ctx context.Context, to kit.ChatTarget, photoURL, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if strings.TrimSpace(photoURL) == "" {
		return kit.MessageRef{}, errors.New("telegram: empty photo url")
	}
	if err := a.wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	photo := &tele.Photo{File: tele.FromURL(photoURL), Caption: fitCaption(caption)}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, photo, sendOptions(opt, to.ThreadID, true))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

// EditText replaces the message text. Overflow beyond one message is sent as follow-ups.
func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	chunks := splitText(text, textLimit)
	if err := a.wait(ctx); err != nil {
		return err
	}
	if _, err := a.bot.Edit(editable(ref), chunks[0], sendOptions(opt, 0, true)); err != nil {
		return mapErr(err)
	}
	if len(chunks) > 1 {
		to := kit.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}
		if _, err := a.sendChunks(ctx, to, chunks[1:], opt, false); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) EditCaption(ctx context.Context, ref kit.MessageRef, caption string, opt *kit.SendOptions) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	_, err := a.bot.EditCaption(editable(ref), fitCaption(caption), sendOptions(opt, 0, true))
	return mapErr(err)
}

// EditMarkup replaces only the inline keyboard; nil markup clears it.
func (a *Adapter) EditMarkup(ctx context.Context, ref kit.MessageRef, opt *kit.SendOptions) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	rm := markupOf(opt)
	if rm == nil {
		rm = &tele.ReplyMarkup{}
	}
	_, err := a.bot.EditReplyMarkup(editable(ref), rm)
	return mapErr(err)
}

func (a *Adapter) Delete(ctx context.Context, ref kit.MessageRef) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	return a.bot.Delete(editable(ref))
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}
