// Package heartbeat posts a periodic status digest on a cron schedule.
package heartbeat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"numwatch/internal/notify"
	kit "numwatch/internal/transport"
	logx "numwatch/pkg/logx"
	"numwatch/pkg/tgui"
)

// Greeting opens the startup message and every digest.
const Greeting = "At Your Service 🍒🍄"

type Config struct {
	// Schedule is a cron spec (5 or 6 fields, or a descriptor such as "@daily").
	// Empty disables the heartbeat.
	Schedule string
	Timezone string
}

type SiteStatus struct {
	ID       string
	Name     string
	Enabled  bool
	Failures int
}

// Status is a point-in-time view of the bot, produced by the caller.
type Status struct {
	Sites    []SiteStatus
	Repeat   time.Duration // 0 when disabled
	LastPass time.Time
}

// Parser accepts an optional seconds field and descriptors.
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Service owns a cron runner with at most one entry.
type Service struct {
	sender kit.TextSender
	chat   kit.ChatTarget
	status func() Status
	log    logx.Logger

	// opMu serializes Start, Apply and Stop. mu guards the fields and is
	// never held while waiting for a running job.
	opMu sync.Mutex
	mu   sync.Mutex
	cfg  Config
	ctx  context.Context
	c    *cron.Cron
	id   cron.EntryID
}

func New(cfg Config, sender kit.TextSender, chat kit.ChatTarget, status func() Status, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{sender: sender, chat: chat, status: status, log: log, cfg: cfg}
}

// Start begins triggering. Posts use ctx until Stop.
func (s *Service) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.ctx = ctx
	return s.startLocked()
}

func (s *Service) startLocked() error {
	spec := strings.TrimSpace(s.cfg.Schedule)
	if spec == "" {
		s.log.Debug("heartbeat disabled")
		return nil
	}
	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("heartbeat timezone: %w", err)
		}
		loc = l
	}
	c := cron.New(cron.WithParser(Parser), cron.WithLocation(loc))
	id, err := c.AddFunc(spec, s.fire)
	if err != nil {
		return fmt.Errorf("heartbeat schedule: %w", err)
	}
	s.c, s.id = c, id
	c.Start()
	s.log.Info("heartbeat started", logx.String("schedule", spec), logx.String("tz", loc.String()))
	return nil
}

func (s *Service) stopLocked() *cron.Cron {
	c := s.c
	s.c, s.id = nil, 0
	return c
}

// Apply swaps the schedule. A running service restarts with the new spec.
func (s *Service) Apply(cfg Config) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if cfg == s.cfg {
		s.mu.Unlock()
		return nil
	}
	s.cfg = cfg
	running := s.ctx != nil
	c := s.stopLocked()
	s.mu.Unlock()
	if !running {
		return nil
	}
	if c != nil {
		<-c.Stop().Done()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Service) Stop(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.mu.Lock()
	c := s.stopLocked()
	s.ctx = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Next returns the next trigger time, or zero when not scheduled.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	return s.c.Entry(s.id).Next
}

func (s *Service) fire() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.Post(pctx); err != nil {
		s.log.Warn("heartbeat post failed", logx.Err(err))
	}
}

// Post sends the digest now.
func (s *Service) Post(ctx context.Context) error {
	var st Status
	if s.status != nil {
		st = s.status()
	}
	_, err := Digest(st).Send(ctx, s.sender, s.chat)
	return err
}

// Digest renders st as an HTML message.
func Digest(st Status) tgui.Message {
	enabled := 0
	for _, site := range st.Sites {
		if site.Enabled {
			enabled++
		}
	}

	b := tgui.New().Line(Greeting).Blank()
	b.KV("Sites", strconv.Itoa(enabled)+"/"+strconv.Itoa(len(st.Sites))+" enabled")
	for _, site := range st.Sites {
		state := "on"
		if !site.Enabled {
			state = "off"
		}
		if site.Failures > 0 {
			state += ", " + strconv.Itoa(site.Failures) + " failed checks"
		}
		b.RawLine(tgui.Raw("  ◦ ") + tgui.B(site.Name) + tgui.Raw(" ") + tgui.Esc("("+state+")"))
	}
	if st.Repeat > 0 {
		b.KV("Repeat", "every "+notify.FormatTime(st.Repeat))
	} else {
		b.KV("Repeat", "disabled")
	}
	if !st.LastPass.IsZero() {
		b.KV("Last check", st.LastPass.Format("2006-01-02 15:04:05"))
	}
	return b.Build()
}
