package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/primeshop/chat/internal/api"
	"github.com/primeshop/chat/internal/auth"
	"github.com/primeshop/chat/internal/config"
	"github.com/primeshop/chat/internal/storage"
	"github.com/primeshop/chat/pkg/logger"
)

const version = "primechat v0.3.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	args, err := parseFlags(cfg, os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(os.Stdout)
			return nil
		}
		return err
	}

	lvl, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)
	defer func() { _ = logger.Sync() }()
	logger.Debugf("Config: BrokerURL=%s APIURL=%s Home=%s", cfg.BrokerURL, cfg.APIURL, cfg.Home)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(args) == 0 {
		printUsage(os.Stdout)
		return nil
	}

	switch args[0] {
	case "login":
		return loginCommand(cfg, args[1:])
	case "conversations", "ls":
		return conversationsCommand(ctx, cfg)
	case "chat":
		return chatCommand(ctx, cfg, args[1:], os.Stdin, os.Stdout)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return nil
	case "version", "--version", "-v":
		fmt.Println(version)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func parseFlags(cfg *config.Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("primechat", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	brokerURL := fs.String("broker", "", "STOMP WebSocket endpoint")
	apiURL := fs.String("api", "", "REST backend base URL")
	userID := fs.Int64("user", 0, "Local user id (default: from token)")
	logLevel := fs.String("log-level", "", "Log level (trace|debug|info|warn|error)")
	reconnect := fs.Duration("reconnect", 0, "Delay between reconnect attempts")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *brokerURL != "" {
		cfg.BrokerURL = *brokerURL
	}
	if *apiURL != "" {
		cfg.APIURL = *apiURL
	}
	if *userID < 0 {
		return nil, fmt.Errorf("invalid -user %d", *userID)
	}
	if *userID > 0 {
		cfg.UserID = *userID
	}
	if *logLevel != "" {
		if _, err := logger.ParseLevel(*logLevel); err != nil {
			return nil, err
		}
		cfg.LogLevel = *logLevel
	}
	if *reconnect < 0 {
		return nil, fmt.Errorf("invalid -reconnect %s", *reconnect)
	}
	if *reconnect > 0 {
		cfg.ReconnectDelay = *reconnect
	}

	return fs.Args(), nil
}

// loginCommand stores a bearer token issued by the storefront backend.
func loginCommand(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	token := fs.String("token", "", "Bearer token to store")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" && fs.NArg() > 0 {
		*token = fs.Arg(0)
	}
	*token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(*token), "Bearer "))
	if *token == "" {
		return fmt.Errorf("usage: primechat login -token <token>")
	}

	if err := storage.SaveAccessToken(cfg.TokenFile, *token); err != nil {
		return err
	}
	fmt.Printf("Token stored in %s\n", cfg.TokenFile)

	if claims, err := auth.ParseClaims(*token); err == nil {
		if id, ok := claims.LocalUserID(); ok {
			fmt.Printf("Signed in as user %d\n", id)
		}
		if claims.ExpiresWithin(time.Now(), 0) {
			fmt.Println("Warning: this token has already expired")
		}
	}
	return nil
}

func conversationsCommand(ctx context.Context, cfg *config.Config) error {
	if _, err := storage.LoadAccessToken(cfg.TokenFile); err != nil {
		return fmt.Errorf("%w (run: primechat login -token <token>)", err)
	}

	client := api.NewClient(cfg.APIURL, storage.TokenSource(cfg.TokenFile))
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	convs, err := client.ListConversations(reqCtx)
	if err != nil {
		return fmt.Errorf("failed to load conversations: %w", err)
	}
	if len(convs) == 0 {
		fmt.Println("No conversations yet.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWITH\tLAST MESSAGE\tAT")
	for _, c := range convs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", c.ID, c.CounterpartDisplayName,
			preview(c.LastMessagePreview, 40), formatTime(c.LastMessageTimestamp.Time))
	}
	return tw.Flush()
}

// resolveUserID picks the local user id from configuration or token claims.
func resolveUserID(cfg *config.Config, token string) int64 {
	if cfg.UserID > 0 {
		return cfg.UserID
	}
	claims, err := auth.ParseClaims(token)
	if err != nil {
		logger.Warnf("Could not read token claims: %v", err)
		return 0
	}
	if claims.ExpiresWithin(time.Now(), 0) {
		logger.Warnf("Access token has expired; the server may reject the connection")
	}
	id, ok := claims.LocalUserID()
	if !ok {
		logger.Warnf("Token carries no user id; set PRIMESHOP_USER_ID to track sent messages")
		return 0
	}
	return id
}

func preview(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `Usage: primechat [flags] <command>

Commands:
  login -token <token>         Store the bearer token
  conversations                List conversations
  chat [-conversation <id>]    Open the interactive chat
  version                      Print version

Flags:
  -broker <url>      STOMP WebSocket endpoint (PRIMESHOP_BROKER_URL)
  -api <url>         REST backend base URL (PRIMESHOP_API_URL)
  -user <id>         Local user id (PRIMESHOP_USER_ID)
  -log-level <lvl>   trace|debug|info|warn|error (PRIMESHOP_LOG_LEVEL)
  -reconnect <dur>   Reconnect delay (PRIMESHOP_RECONNECT_DELAY)

Chat commands:
  /open <id>   switch conversation
  /more        load older messages
  /list        show conversations
  /close       close the conversation
  /quit        exit
`)
}
