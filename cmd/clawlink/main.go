package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayano-dev/clawlink/internal/config"
	"github.com/ayano-dev/clawlink/internal/gateway"
	"github.com/ayano-dev/clawlink/internal/identity"
	"github.com/ayano-dev/clawlink/internal/kv"
	"github.com/ayano-dev/clawlink/internal/logger"
)

var (
	configPath    string
	sessionKey    string
	thinkingLevel string
	model         string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clawlink",
		Short: "Session client for the agent gateway",
		Long:  "Connects to the agent gateway over WebSocket and streams agent replies",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session",
		RunE:  runChat,
	}
	sendCmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send one message and print the streamed reply",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSend,
	}
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Connect, print handshake details, and exit",
		RunE:  runStatus,
	}
	for _, cmd := range []*cobra.Command{chatCmd, sendCmd} {
		cmd.Flags().StringVar(&sessionKey, "session", "", "Conversation session key")
		cmd.Flags().StringVar(&thinkingLevel, "thinking", "", "Thinking level hint")
		cmd.Flags().StringVar(&model, "model", "", "Model override")
	}
	rootCmd.AddCommand(chatCmd, sendCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads config, opens the identity store, and returns a connected
// Connector plus a cleanup that must run on exit.
func setup(ctx context.Context) (*gateway.Connector, *identity.Store, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logger.Init(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := kv.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	ident := identity.NewStore(store)

	conn := gateway.New(gateway.Config{
		URL:                  cfg.Gateway.URL,
		Token:                cfg.Gateway.Token,
		Mode:                 cfg.Client.Mode,
		ReconnectInterval:    cfg.ReconnectInterval(),
		MaxReconnectAttempts: cfg.Reconnect.MaxAttempts,
	}, log, ident)

	cleanup := func() {
		conn.Disconnect()
		store.Close()
	}
	if err := conn.Connect(ctx); err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("connect: %w", err)
	}
	return conn, ident, cleanup, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	conn, ident, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("status:   %s\n", conn.GetStatus())
	fmt.Printf("protocol: %d\n", conn.Protocol())
	if id, err := ident.Load(); err == nil {
		fmt.Printf("device:   %s\n", id.DeviceID)
		fmt.Printf("token:    %v\n", id.DeviceToken != "")
	}
	if tick := conn.LastTick(); !tick.IsZero() {
		fmt.Printf("tick:     %s\n", tick.Format(time.RFC3339))
	}
	return nil
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	conn, _, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	done := make(chan struct{})
	unsub := conn.OnMessage(func(ch gateway.Chunk) {
		switch ch.Kind {
		case gateway.ChunkText:
			fmt.Print(ch.Content)
		case gateway.ChunkError:
			fmt.Fprintf(os.Stderr, "\nagent error: %s\n", ch.Content)
			close(done)
		case gateway.ChunkEnd:
			fmt.Println()
			close(done)
		}
	})
	defer unsub()

	accepted, err := conn.SendMessage(ctx, strings.Join(args, " "), gateway.SendOptions{
		SessionKey:    sessionKey,
		ThinkingLevel: thinkingLevel,
		Model:         model,
	})
	if err != nil {
		return err
	}
	if !accepted {
		return fmt.Errorf("gateway did not accept the message")
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, _, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	turnDone := make(chan struct{}, 1)
	unsub := conn.OnMessage(func(ch gateway.Chunk) {
		switch ch.Kind {
		case gateway.ChunkText:
			fmt.Print(ch.Content)
		case gateway.ChunkThinking:
			// Thinking traces stay out of the transcript.
		case gateway.ChunkTool:
			fmt.Printf("\n[tool] %s\n", ch.Content)
		case gateway.ChunkError:
			fmt.Fprintf(os.Stderr, "\nagent error: %s\n", ch.Content)
			turnDone <- struct{}{}
		case gateway.ChunkEnd:
			fmt.Println()
			turnDone <- struct{}{}
		}
	})
	defer unsub()

	unsubStatus := conn.OnStatusChange(func(st gateway.Status) {
		if st != gateway.StatusConnected {
			fmt.Fprintf(os.Stderr, "[%s]\n", st)
		}
	})
	defer unsubStatus()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		accepted, err := conn.SendMessage(ctx, line, gateway.SendOptions{
			SessionKey:    sessionKey,
			ThinkingLevel: thinkingLevel,
			Model:         model,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			continue
		}
		if !accepted {
			fmt.Fprintln(os.Stderr, "not connected, message dropped")
			continue
		}

		select {
		case <-turnDone:
		case <-ctx.Done():
			return nil
		}
	}
}
