package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"numwatch/internal/bot"
	"numwatch/internal/config"
	"numwatch/internal/eventbus"
	"numwatch/internal/fetch"
	"numwatch/internal/heartbeat"
	"numwatch/internal/httpapi"
	"numwatch/internal/monitor"
	"numwatch/internal/notify"
	"numwatch/internal/runtime/supervisor"
	"numwatch/internal/storage"
	kit "numwatch/internal/transport"
	telegram "numwatch/internal/transport/telegram/adapter"
	logx "numwatch/pkg/logx"
	"numwatch/pkg/tgui"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	counter *eventbus.Counter
	store   storage.Store

	adapter kit.Adapter
	chat    kit.ChatTarget

	reg     *monitor.Registry
	fetcher *fetch.Fetcher
	repeat  *notify.Repeat
	disp    *notify.Dispatcher
	loop    *monitor.Loop

	router   *bot.Router
	handlers *bot.Handlers
	beat     *heartbeat.Service
	http     *httpapi.Service

	opts    options
	updates chan kit.Update
}

type options struct {
	adapter kit.Adapter
	timings bot.Timings
	tick    time.Duration
}

type Option func(*options)

// WithAdapter replaces the Telegram adapter, e.g. with an in-memory fake.
func WithAdapter(ad kit.Adapter) Option { return func(o *options) { o.adapter = ad } }

// WithTimings overrides the UI animation delays.
func WithTimings(t bot.Timings) Option { return func(o *options) { o.timings = t } }

// WithCountdownTick overrides the one second countdown tick.
func WithCountdownTick(d time.Duration) Option { return func(o *options) { o.tick = d } }

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	dur, err := cfg.ParseDurations()
	if err != nil {
		return nil, err
	}

	ad := o.adapter
	if ad == nil {
		bootLog := logx.NewConsole("INFO").With(logx.Comp("telegram"))
		tg, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: dur.PollTimeout,
			RatePerSec:  cfg.Telegram.RatePerSec,
		}, bootLog)
		if err != nil {
			return nil, err
		}
		ad = tg
	}

	// Bootstrap with Telegram logging disabled, set the target, then Apply() the final config
	// so Apply() does not warn about a missing target.
	logCfg := mapLoggingConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	if chatID, ok := groupLogChat(cfg); ok {
		logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)
	log = log.With(logx.Comp("app"))

	bus := eventbus.New()

	var store storage.Store
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if enabled {
		st, err := storage.Open(sc, log.With(logx.Comp("storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	} else {
		store = storage.NewMemory()
		log.Warn("storage disabled; state is kept in memory only")
	}

	sites, err := mapSites(cfg)
	if err != nil {
		return nil, err
	}
	reg := monitor.NewRegistry(sites, store, log.With(logx.Comp("registry")))

	fcfg, err := mapFetchConfig(cfg, dur, log.With(logx.Comp("fetch")))
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		counter: eventbus.NewCounter(),
		store:   store,
		adapter: ad,
		chat:    kit.ChatTarget{ChatID: cfg.Telegram.ChatID},
		reg:     reg,
		fetcher: fetch.New(fcfg),
		repeat:  notify.NewRepeat(cfg.Repeat.Enabled, dur.RepeatInterval),
		opts:    o,
		updates: make(chan kit.Update, 256),
	}
	a.beat = heartbeat.New(mapHeartbeatConfig(cfg), ad, a.chat, a.heartbeatStatus, log.With(logx.Comp("heartbeat")))
	a.http = httpapi.New(mapHTTPConfig(cfg), httpapi.Sources{
		Health: a.health,
		Sites:  a.siteViews,
		Events: a.counter.Snapshot,
		Status: a.status,
	}, log.With(logx.Comp("http")))
	a.router = bot.NewRouter(log.With(logx.Comp("bot")), ad, cfg.Telegram.OwnerUserIDs)
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) validate(_ context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapSites(cfg); err != nil {
		return err
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()
	dur, err := cfg.ParseDurations()
	if err != nil {
		return err
	}

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.Comp("config")))
	a.cfgm.SetValidator(a.validate)

	if err := a.reg.Load(run); err != nil {
		return err
	}

	a.disp = notify.NewDispatcher(run, a.adapter, a.reg, notify.Options{
		Chat:   a.chat,
		Repeat: a.repeat,
		Bus:    a.bus,
		Log:    a.log.With(logx.Comp("notify")),
		Tick:   a.opts.tick,
	})
	a.loop = monitor.NewLoop(a.reg, a.fetcher, a.disp, monitor.LoopOptions{
		Interval:    dur.CheckInterval,
		MaxFailures: maxFailures(cfg),
		Bus:         a.bus,
		Log:         a.log.With(logx.Comp("monitor")),
	})
	a.handlers = bot.NewHandlers(bot.Deps{
		Registry:   a.reg,
		Dispatcher: a.disp,
		Adapter:    a.adapter,
		Spawn:      a.sup,
		Bus:        a.bus,
		Log:        a.log.With(logx.Comp("bot")),
		Timings:    a.opts.timings,
	})
	a.handlers.Register(a.router)

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	a.sendStartup(run)

	a.sup.Go("monitor.loop", a.loop.Run)

	if a.bus != nil {
		a.startEventTaps()
	}

	if err := a.beat.Start(run); err != nil {
		a.log.Warn("heartbeat not started", logx.Err(err))
	}
	if err := a.http.Reconfigure(run, mapHTTPConfig(cfg)); err != nil {
		a.log.Warn("http not started", logx.Err(err))
	}

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	enabled := 0
	for _, s := range a.reg.Sites() {
		if s.Enabled {
			enabled++
		}
	}
	a.log.Info("app started",
		logx.Int("sites", a.reg.Len()),
		logx.Int("sites_enabled", enabled),
		logx.Bool("repeat", a.repeat.Enabled()),
		logx.Duration("check_interval", dur.CheckInterval),
	)
	return nil
}

func (a *App) sendStartup(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := tgui.New().Line(heartbeat.Greeting).Build().Send(sctx, a.adapter, a.chat); err != nil {
		a.log.Warn("startup message failed", logx.Err(err))
	}
}

// startEventTaps logs state-changing bus events at debug level and counts every event for /events.
func (a *App) startEventTaps() {
	logCh, unsubLog := a.bus.Subscribe(64, eventbus.SiteFailed, eventbus.SiteToggled, eventbus.NotificationSent, eventbus.CountdownExpired)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsubLog()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-logCh:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Site(e.SiteID), logx.Time("time", e.Time))
			}
		}
	})

	countCh, unsubCount := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.count", func(c context.Context) {
		defer unsubCount()
		a.counter.Run(c, countCh)
	})
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("heartbeat", time.Second, func(c context.Context) error { a.beat.Stop(c); return nil })
	step("http", time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("countdowns", 2*time.Second, func(context.Context) error {
		if a.disp != nil {
			a.disp.Countdowns().CancelAll()
			a.disp.Countdowns().Wait()
		}
		return nil
	})
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	// Finally, wait for supervised goroutines (config watch/reload, dispatcher, monitor loop).
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
