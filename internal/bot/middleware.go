package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "numwatch/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] runs outermost.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// slowRequest promotes the request log line from debug to info.
const slowRequest = 750 * time.Millisecond

const failedAnswer = "Something went wrong, try again"

// pipeline is the middleware stack every command and callback runs through.
func (m *Router) pipeline(h HandlerFunc, timeout time.Duration) HandlerFunc {
	return Chain(h, recoverPanics, logRequests, answerFailures, withTimeout(timeout))
}

func withTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

func recoverPanics(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) (err error) {
		defer func() {
			if r := recover(); r != nil {
				req.Logger.Error("handler panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return next(ctx, req)
	}
}

func logRequests(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		start := time.Now()
		err := next(ctx, req)
		d := time.Since(start)

		fields := []logx.Field{logx.String("kind", string(req.Update.Kind)), logx.Duration("dur", d)}
		switch {
		case err != nil:
			req.Logger.Warn("request failed", append(fields, logx.Err(err))...)
		case d >= slowRequest:
			req.Logger.Info("request slow", fields...)
		default:
			req.Logger.Debug("request ok", fields...)
		}
		return err
	}
}

// answerFailures tells the user a button press failed instead of leaving the spinner.
// Handlers that already answered are unaffected since Answer fires once.
func answerFailures(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		err := next(ctx, req)
		if err != nil && req.CallbackID != "" {
			actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
			_ = req.Answer(actx, failedAnswer)
			cancel()
		}
		return err
	}
}
