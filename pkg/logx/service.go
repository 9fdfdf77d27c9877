package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const DefaultFilePath = "./lightup.log"

type Config struct {
	Level    string         `json:"level"`
	Console  bool           `json:"console"`
	File     FileConfig     `json:"file"`
	Telegram TelegramConfig `json:"telegram"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type TelegramConfig struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// Sender delivers a rendered log line to a chat. The telegram transport
// implements it.
type Sender interface {
	SendLog(ctx context.Context, chatID int64, threadID int, text string) error
}

// Service owns the live output set. Loggers obtained from it pick up
// Apply changes without being rebuilt.
type Service struct {
	mu   sync.Mutex
	cfg  Config
	root atomic.Pointer[zerolog.Logger]
	file *os.File

	sender   Sender
	chatID   int64
	threadID int
	minLevel zerolog.Level
	limiter  *rate.Limiter

	chatQueue  chan chatLine
	chatCancel context.CancelFunc
	chatWG     sync.WaitGroup
	chatOnce   sync.Once
	dropped    atomic.Uint64
}

type chatLine struct {
	chatID   int64
	threadID int
	text     string
}

// New builds a Service from cfg. sender may be nil; the chat sink then
// stays silent even when enabled.
func New(cfg Config, sender Sender) (*Service, Logger) {
	setGlobals()
	s := &Service{
		sender:    sender,
		chatQueue: make(chan chatLine, 256),
	}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetSender swaps the chat sender, e.g. once the telegram bot is up.
func (s *Service) SetSender(sender Sender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

func (s *Service) SetTelegramTarget(chatID int64, threadID int) {
	s.mu.Lock()
	s.chatID = chatID
	if threadID != 0 {
		s.threadID = threadID
	}
	s.mu.Unlock()
}

// Dropped counts chat lines discarded because the queue was full.
func (s *Service) Dropped() uint64 { return s.dropped.Load() }

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	cancel := s.chatCancel
	s.chatCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.chatWG.Wait()
	}
	if f != nil {
		return f.Close()
	}
	return nil
}

// Apply swaps outputs and levels at runtime. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.minLevel = parseLevel(cfg.Telegram.MinLevel, zerolog.WarnLevel)
	rps := max(1, cfg.Telegram.RatePerSec)
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if cfg.Telegram.ThreadID != 0 {
		s.threadID = cfg.Telegram.ThreadID
	}

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(Stdout()))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = DefaultFilePath
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.Telegram.Enabled {
		s.chatOnce.Do(s.startChatWorker)
		writers = append(writers, &chatWriter{svc: s})
		if s.chatID == 0 {
			fmt.Fprintln(os.Stderr, "logx: telegram logging enabled but no log chat is set")
		}
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(Stdout()))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

func (s *Service) startChatWorker() {
	ctx, cancel := context.WithCancel(context.Background())
	s.chatCancel = cancel
	s.chatWG.Add(1)
	go func() {
		defer s.chatWG.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ln := <-s.chatQueue:
				s.mu.Lock()
				sender := s.sender
				s.mu.Unlock()
				if sender == nil {
					continue
				}
				// Failures here cannot be logged without feeding the sink again.
				_ = sender.SendLog(ctx, ln.chatID, ln.threadID, ln.text)
			}
		}
	}()
}
