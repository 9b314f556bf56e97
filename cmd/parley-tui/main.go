// ABOUTME: Terminal client for parley conversations over HTTP API.
// ABOUTME: Provides readline-style input with live SSE message streaming.

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/chat"
	"github.com/parley-chat/parley/internal/client"
	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/conversation"
	"github.com/parley-chat/parley/internal/store"
	"github.com/parley-chat/parley/internal/stream"
)

// getToken returns the bearer token from the PARLEY_TOKEN env var, the
// configured token file, or ~/.config/parley/token.
func getToken(cfg *config.Config) string {
	if token := os.Getenv("PARLEY_TOKEN"); token != "" {
		return token
	}

	tokenPath := cfg.Auth.TokenPath
	if tokenPath == "" {
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return ""
			}
			configDir = filepath.Join(homeDir, ".config")
		}
		tokenPath = filepath.Join(configDir, "parley", "token")
	}

	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}

func main() {
	server := flag.String("server", "", "Chat server base URL (overrides config)")
	user := flag.String("user", "tui-user", "Local username, filtered from typing display")
	chatID := flag.String("chat", "general", "Conversation id to open")
	flag.Parse()

	cfg, err := config.Load(config.ResolvePath())
	if err != nil {
		// No config file is fine when -server is given on the command line.
		if *server == "" {
			fmt.Fprintf(os.Stderr, "Error: %v (or pass -server)\n", err)
			os.Exit(1)
		}
		cfg = &config.Config{}
	}
	if *server != "" {
		cfg.Server.BaseURL = *server
	}

	fmt.Printf("parley-tui connected to %s\n", cfg.Server.BaseURL)
	if getToken(cfg) != "" {
		fmt.Println("Auth: bearer token configured (PARLEY_TOKEN)")
	} else {
		fmt.Println("Auth: none (set PARLEY_TOKEN for authentication)")
	}
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *user, *chatID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, cfg *config.Config, user, chatID string) error {
	logger := setupLogger(cfg.Logging)

	httpClient := auth.NewClient(cfg.Server.BaseURL, nil, auth.StaticToken(getToken(cfg)), cfg.Auth.Locale)
	rest := client.NewService(httpClient, logger)

	printer := &messagePrinter{user: user}
	consumer := stream.NewConsumer(httpClient, printer, logger)

	svc := conversation.New(store.New(logger), rest, rest, consumer, user, conversation.Options{
		PageSize:      cfg.Chat.PageSize,
		TypingQuiet:   cfg.Chat.TypingQuiet,
		PulseInterval: cfg.Chat.PulseInterval,
	}, logger)
	printer.svc = svc

	svc.Open(chatID)
	defer svc.Close(chatID)

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("[%s]> ", chatID)

		// Read input with context awareness
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if input == "/help" {
			printHelp()
			fmt.Println()
			continue
		}

		if input == "/older" {
			if err := svc.LoadOlderPage(chatID); err != nil {
				printError(err)
			} else {
				printLog(svc.Snapshot(chatID))
			}
			fmt.Println()
			continue
		}

		if input == "/who" {
			printTyping(svc.Snapshot(chatID))
			fmt.Println()
			continue
		}

		if input == "/pulse" {
			svc.SendTypingPulse(ctx, chatID)
			fmt.Println("typing pulse sent")
			fmt.Println()
			continue
		}

		if err := svc.SendMessage(ctx, chatID, input); err != nil {
			printError(err)
		}
	}
}

// printHelp displays available commands.
func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /older         Load the previous page of history")
	fmt.Println("  /who           Show who is typing right now")
	fmt.Println("  /pulse         Send a typing pulse")
	fmt.Println("  /help          Show this help")
	fmt.Println("  /quit          Exit the TUI")
}

func printError(err error) {
	if errors.Is(err, auth.ErrSessionExpired) {
		color.Red("[error] session expired, refresh your token")
		return
	}
	color.Red("[error] %v", err)
}

func printLog(snap store.Snapshot) {
	gray := color.New(color.FgHiBlack)
	fmt.Println(strings.Repeat("-", 60))
	for _, m := range snap.Messages {
		printMessage(m)
	}
	if snap.HasMore {
		gray.Println("... more history available (/older)")
	}
	fmt.Println(strings.Repeat("-", 60))
}

func printTyping(snap store.Snapshot) {
	if len(snap.Typing) == 0 {
		fmt.Println("Nobody is typing")
		return
	}
	fmt.Printf("Typing: %s\n", strings.Join(snap.Typing, ", "))
}

func printMessage(m chat.Message) {
	ts := ""
	if !m.Timestamp.IsZero() {
		ts = m.Timestamp.Local().Format("15:04:05") + " "
	}
	fmt.Printf("%s%s %s\n",
		color.HiBlackString(ts),
		color.CyanString(m.Author+":"),
		m.Body,
	)
}

// messagePrinter feeds stream events into the conversation engine and echoes
// them to the terminal as they arrive.
type messagePrinter struct {
	mu   sync.Mutex
	user string
	svc  *conversation.Service
}

func (p *messagePrinter) HandleMessage(chatID string, msg chat.Message) {
	p.svc.HandleMessage(chatID, msg)

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Println()
	printMessage(msg)
}

func (p *messagePrinter) HandleTyping(chatID, author string) {
	p.svc.HandleTyping(chatID, author)
	if author == p.user {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	color.New(color.FgHiBlack).Printf("\n%s is typing...\n", author)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		// Keep the terminal quiet unless asked otherwise.
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(newColorHandler(os.Stderr, level))
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu    sync.Mutex
	out   io.Writer
	level slog.Level
	attrs []slog.Attr
}

func newColorHandler(out io.Writer, level slog.Level) *colorHandler {
	return &colorHandler{out: out, level: level}
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(h.out, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		out:   h.out,
		level: h.level,
		attrs: newAttrs,
	}
}

func (h *colorHandler) WithGroup(string) slog.Handler {
	return h
}
