package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"
	"gopkg.in/telebot.v4/middleware"

	rtsup "lightup/internal/runtime/supervisor"
	logx "lightup/pkg/logx"
)

var ErrNoChat = errors.New("telegram: no chat configured")

type Config struct {
	Token string
	// URL overrides the Bot API endpoint; tests point it at httptest.
	URL      string
	ChatID   int64
	ThreadID int
	// Commands starts long polling and registers the command handlers.
	Commands     bool
	OwnerUserIDs []int64
	PollTimeout  time.Duration
}

// Bot is a notifier.Sender and a logx.Sender.
type Bot struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func New(cfg Config, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	log = log.With(logx.String("comp", "telegram"))
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		URL:    cfg.URL,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
		// Sending needs no getMe round trip; polling does.
		Offline: !cfg.Commands,
		OnError: func(err error, c tele.Context) {
			log.Warn("telegram handler failed", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	return &Bot{cfg: cfg, log: log, bot: b}, nil
}

// SendText sends to the configured alarm chat.
func (b *Bot) SendText(ctx context.Context, text string) error {
	if b.cfg.ChatID == 0 {
		return ErrNoChat
	}
	return b.send(ctx, b.cfg.ChatID, b.cfg.ThreadID, text)
}

// SendLog sends a log line to chatID.
func (b *Bot) SendLog(ctx context.Context, chatID int64, threadID int, text string) error {
	return b.send(ctx, chatID, threadID, text)
}

func (b *Bot) send(ctx context.Context, chatID int64, threadID int, text string) error {
	chat := &tele.Chat{ID: chatID}
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := b.bot.Send(chat, chunk, &tele.SendOptions{
			ThreadID:              threadID,
			DisableWebPagePreview: true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Supervisor is nil unless polling.
func (b *Bot) Supervisor() *rtsup.Supervisor {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	return b.sup
}

// Start begins long polling for commands answered by q. It is a no-op
// unless commands are enabled.
func (b *Bot) Start(ctx context.Context, q Queries) {
	if !b.cfg.Commands || q == nil {
		return
	}
	b.runMu.Lock()
	if b.running {
		b.runMu.Unlock()
		return
	}
	b.running = true
	b.sup = rtsup.New(ctx, rtsup.WithLogger(b.log), rtsup.WithCancelOnError(false))
	sup := b.sup
	b.runMu.Unlock()

	b.bot.Use(middleware.Recover(func(err error, _ tele.Context) {
		b.log.Error("telegram handler panicked", logx.Err(err))
	}))
	if len(b.cfg.OwnerUserIDs) > 0 {
		b.bot.Use(middleware.Whitelist(b.cfg.OwnerUserIDs...))
	}
	registerCommands(b.bot, q, b.log)

	sup.Go0("telegram.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		b.bot.Stop()
	})
	// Start returns only on Stop; restart it if it exits early.
	sup.GoRestart0("telegram.poll", func(context.Context) {
		b.log.Info("polling started")
		b.bot.Start()
		b.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)
}

// Stop ends polling, waiting at most two seconds for the long poll.
func (b *Bot) Stop(ctx context.Context) {
	b.runMu.Lock()
	sup := b.sup
	b.sup = nil
	b.running = false
	b.runMu.Unlock()
	if sup == nil {
		return
	}
	sup.Cancel()

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		b.log.Debug("telegram stopped with error", logx.Err(err))
	}
}
