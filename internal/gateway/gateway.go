package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/driftlock/symbiont/internal/bus"
	"github.com/driftlock/symbiont/internal/channel"
	"github.com/driftlock/symbiont/internal/config"
	"github.com/driftlock/symbiont/internal/llm"
	"github.com/driftlock/symbiont/internal/pipeline"
	"github.com/driftlock/symbiont/internal/store"
)

// failureReply is surfaced when the generator exhausts its retries; the
// turn's transient mood state resets with it.
const failureReply = "SYSTEM FAILURE."

// Gateway wires channels, the completion backend and the fact store into
// per-session pipeline coordinators.
type Gateway struct {
	cfg      *config.Config
	bus      *bus.MessageBus
	backend  llm.Backend
	store    store.FactStore
	channels *channel.ChannelManager
	cron     *rcron.Cron

	mu       sync.Mutex
	sessions map[string]*session

	signalChan chan os.Signal // for testing
}

type session struct {
	coord        *pipeline.Coordinator
	questionMode bool
}

// Options for creating a Gateway
type Options struct {
	Backend    llm.Backend
	Store      store.FactStore
	SignalChan chan os.Signal
}

func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with injectable dependencies for testing.
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{
		cfg:        cfg,
		bus:        bus.NewMessageBus(config.DefaultBufSize),
		sessions:   make(map[string]*session),
		signalChan: opts.SignalChan,
	}

	g.backend = opts.Backend
	if g.backend == nil {
		g.backend = llm.NewClient(cfg)
	}

	g.store = opts.Store
	if g.store == nil {
		st, err := OpenFactStore(cfg)
		if err != nil {
			return nil, err
		}
		g.store = st
	}

	chMgr, err := channel.NewChannelManager(cfg.Channels, cfg.Gateway, g.bus)
	if err != nil {
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	return g, nil
}

// OpenFactStore selects the fact store backend from configuration: remote
// endpoint first, embedded SQLite second, nil (memory disabled) when
// neither is configured.
func OpenFactStore(cfg *config.Config) (store.FactStore, error) {
	if cfg.Memory.StoreURL != "" {
		log.Printf("[gateway] using remote fact store")
		return store.NewHTTPStore(cfg.Memory.StoreURL), nil
	}
	if cfg.Memory.LocalPath != "" {
		log.Printf("[gateway] using local fact store at %s", cfg.Memory.LocalPath)
		st, err := store.NewLocalStore(cfg.Memory.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("open local fact store: %w", err)
		}
		return st, nil
	}
	log.Printf("[gateway] memory disabled, replies are stateless")
	return nil, nil
}

func (g *Gateway) session(key string) *session {
	g.mu.Lock()
	defer g.mu.Unlock()

	if s, ok := g.sessions[key]; ok {
		return s
	}
	s := &session{coord: pipeline.NewCoordinator(g.cfg, g.backend, g.store)}
	g.sessions[key] = s
	log.Printf("[gateway] new session %s", key)
	return s
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	g.startGapWatcher()

	go g.processLoop(ctx)

	log.Printf("[gateway] running on %s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port)

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

// startGapWatcher schedules the hourly check that inserts the time-gap
// system note into idle sessions. The original only checked at startup;
// a long-running daemon has to re-check periodically.
func (g *Gateway) startGapWatcher() {
	g.cron = rcron.New()
	if _, err := g.cron.AddFunc("@hourly", g.insertGapNotes); err != nil {
		log.Printf("[gateway] gap watcher schedule warning: %v", err)
		return
	}
	g.cron.Start()
}

func (g *Gateway) insertGapNotes() {
	now := time.Now()
	g.mu.Lock()
	sessions := make([]*session, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.Unlock()

	for _, s := range sessions {
		s.coord.InsertGapNote(now)
	}
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			log.Printf("[gateway] inbound from %s/%s: %s", msg.Channel, msg.SenderID, truncate(msg.Content, 80))
			g.handleInbound(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	s := g.session(msg.SessionKey())

	if result, handled := triage(msg.Content, s); handled {
		g.send(msg, result)
		return
	}

	result, err := s.coord.RunTurn(ctx, msg.Content, s.questionMode)
	if err != nil {
		log.Printf("[gateway] turn error: %v", err)
		g.send(msg, &pipeline.PipelineResult{Reply: failureReply, Mood: pipeline.MoodDislike})
		return
	}

	g.send(msg, result)
}

func (g *Gateway) send(msg bus.InboundMessage, result *pipeline.PipelineResult) {
	g.bus.Outbound <- bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: result.Reply,
		Mood:    result.Mood,
		Roots:   result.Roots,
	}
}

func (g *Gateway) Shutdown() error {
	if g.cron != nil {
		g.cron.Stop()
	}
	_ = g.channels.StopAll()

	g.mu.Lock()
	for _, s := range g.sessions {
		s.coord.Close()
	}
	g.mu.Unlock()

	if closer, ok := g.store.(interface{ Close() error }); ok && closer != nil {
		if err := closer.Close(); err != nil {
			log.Printf("[gateway] close fact store warning: %v", err)
		}
	}

	log.Printf("[gateway] shutdown complete")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
