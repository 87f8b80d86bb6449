package bot

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"numwatch/internal/runtime/supervisor"
	kit "numwatch/internal/transport"
	logx "numwatch/pkg/logx"
)

// Command is a slash command such as /set_repeat.
type Command struct {
	Name        string
	Description string
	Timeout     time.Duration
	Handle      HandlerFunc
}

// CallbackRoute handles inline button data starting with Prefix.
// The longest matching prefix wins.
type CallbackRoute struct {
	Prefix  string
	Timeout time.Duration
	Handle  HandlerFunc
}

type Request struct {
	Update kit.Update
	Chat   kit.ChatTarget
	FromID int64
	Route  string
	ReqID  string
	Logger logx.Logger

	// Message updates.
	MessageID int
	Args      []string

	// Callback updates.
	CallbackID string
	Data       string
	Ref        kit.MessageRef

	ad       kit.Adapter
	mu       sync.Mutex
	answered bool
}

// Answer responds to the callback once; later calls are ignored.
func (r *Request) Answer(ctx context.Context, text string) error {
	if r.CallbackID == "" {
		return nil
	}
	r.mu.Lock()
	if r.answered {
		r.mu.Unlock()
		return nil
	}
	r.answered = true
	r.mu.Unlock()
	return r.ad.AnswerCallback(ctx, r.CallbackID, text)
}

// Router turns transport updates into handler calls on a bounded worker pool.
type Router struct {
	mu        sync.RWMutex
	commands  map[string]Command
	callbacks []CallbackRoute
	owners    []int64

	log     logx.Logger
	adapter kit.Adapter

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	jobs chan func()
}

func NewRouter(log logx.Logger, adapter kit.Adapter, owners []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		commands: map[string]Command{},
		owners:   slices.Clone(owners),
		log:      log,
		adapter:  adapter,
		jobs:     make(chan func(), 256),
	}
}

func (m *Router) setSupervisor(sup *supervisor.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// SetOwners replaces the users allowed to use the bot. Empty means everyone.
func (m *Router) SetOwners(owners []int64) {
	cp := slices.Clone(owners)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

func (m *Router) allowed(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.owners) == 0 || slices.Contains(m.owners, id)
}

// SetRegistry installs commands and callback routes, replacing previous ones.
func (m *Router) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	commands := make(map[string]Command, len(cmds))
	menu := make([]kit.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		commands[name] = c
		if c.Description != "" {
			menu = append(menu, kit.BotCommand{Command: name, Description: c.Description})
		}
	}

	routes := make([]CallbackRoute, 0, len(cbs))
	for _, r := range cbs {
		if r.Prefix == "" || r.Handle == nil {
			continue
		}
		routes = append(routes, r)
	}
	slices.SortStableFunc(routes, func(a, b CallbackRoute) int { return len(b.Prefix) - len(a.Prefix) })

	m.mu.Lock()
	m.commands = commands
	m.callbacks = routes
	m.mu.Unlock()

	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok && len(menu) > 0 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(ctx, menu); err != nil {
				m.log.Debug("menu update failed", logx.Err(err))
			}
		}()
	}
}

func (m *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates until ctx ends or updates is closed.
func (m *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := max(runtime.NumCPU(), 2)

	sup := supervisor.New(ctx,
		supervisor.WithLogger(m.log.With(logx.Comp("bot.router"))),
		supervisor.WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	m.log.Info("dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			m.setSupervisor(sup, false)
			close(m.jobs)
		})
	}

	for i := range workers {
		idx := i
		sup.GoRestart("worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in job", logx.Int("worker", idx), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.setSupervisor(nil, false)
		m.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(ctx, up)
		}
	}
}

func (m *Router) route(root context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(root, up)
	case kit.UpdateCallback:
		m.routeCallback(root, up)
	}
}

// parseCommand splits "/name@bot a b" into "name" and its arguments.
func parseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	name := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), parts[1:], true
}

func (m *Router) routeMessage(root context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}
	m.mu.RLock()
	cmd, found := m.commands[name]
	m.mu.RUnlock()
	if !found {
		m.log.Debug("unknown command", logx.String("cmd", name))
		return
	}
	if !m.allowed(msg.FromID) {
		m.log.Warn("command from unauthorized user", logx.Int64("from_id", msg.FromID), logx.String("cmd", name))
		return
	}

	req := m.newRequest(up, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, msg.FromID, "/"+name)
	req.MessageID = msg.ID
	req.Args = args

	final := m.pipeline(cmd.Handle, cmd.Timeout)
	if !m.tryEnqueue(func() { _ = final(root, req) }) {
		m.log.Warn("job queue full; command dropped", logx.String("cmd", name))
	}
}

func (m *Router) routeCallback(root context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	data := strings.TrimSpace(cb.Data)

	m.mu.RLock()
	var route CallbackRoute
	var found bool
	for _, r := range m.callbacks {
		if strings.HasPrefix(data, r.Prefix) {
			route, found = r, true
			break
		}
	}
	m.mu.RUnlock()

	if !found {
		_ = m.adapter.AnswerCallback(root, cb.ID, "")
		return
	}
	if !m.allowed(cb.FromID) {
		_ = m.adapter.AnswerCallback(root, cb.ID, "forbidden")
		return
	}

	req := m.newRequest(up, kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}, cb.FromID, route.Prefix)
	req.CallbackID = cb.ID
	req.Data = data
	req.Ref = kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}

	final := m.pipeline(route.Handle, route.Timeout)
	if !m.tryEnqueue(func() {
		_ = final(root, req)
		// Stops the client's loading spinner when the handler did not answer.
		_ = req.Answer(root, "")
	}) {
		_ = m.adapter.AnswerCallback(root, cb.ID, "busy")
	}
}

func (m *Router) newRequest(up kit.Update, chat kit.ChatTarget, from int64, route string) *Request {
	rid := newReqID()
	return &Request{
		Update: up,
		Chat:   chat,
		FromID: from,
		Route:  route,
		ReqID:  rid,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Chat(chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("route", route),
		),
		ad: m.adapter,
	}
}
