// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// rendezvous-chat joins a conversation from the terminal. It prints the
// stored history grouped by day, then live messages as they arrive,
// and sends each line read from stdin. Lines starting with "/" are
// commands:
//
//	/upload PATH   upload a file to the conversation
//	/reconnect     reconnect after the channel gave up
//	/recover ID    request a fresh link for a message's file
//	/quit          leave
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/rendezvous/chat"
	"github.com/bureau-foundation/rendezvous/lib/config"
	"github.com/bureau-foundation/rendezvous/lib/process"
	"github.com/bureau-foundation/rendezvous/lib/version"
	"github.com/bureau-foundation/rendezvous/messaging"
	"github.com/bureau-foundation/rendezvous/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath   string
		conversation string
		skipHistory  bool
		logFormat    string
		debug        bool
	)

	flagSet := pflag.NewFlagSet("rendezvous-chat", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to rendezvous.yaml (default: $RENDEZVOUS_CONFIG)")
	flagSet.StringVar(&conversation, "conversation", "", "conversation context identifier (required)")
	flagSet.BoolVar(&skipHistory, "no-history", false, "do not fetch stored history on start")
	flagSet.StringVar(&logFormat, "log-format", process.LogFormatAuto, "log format: auto, text, or json")
	flagSet.BoolVar(&debug, "debug", false, "enable debug logging")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("rendezvous-chat")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	if conversation == "" {
		return fmt.Errorf("--conversation is required")
	}

	logger, err := process.NewLogger(os.Stderr, logFormat, debug)
	if err != nil {
		return err
	}
	logger = logger.With("conversation", conversation)

	var settings *config.Config
	if configPath != "" {
		settings, err = config.LoadFile(configPath)
	} else {
		settings, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runChat(ctx, settings, conversation, !skipHistory, logger)
}

func runChat(ctx context.Context, settings *config.Config, conversation string, loadHistory bool, logger *slog.Logger) error {
	client, err := messaging.NewClient(messaging.ClientConfig{
		BaseURL:      settings.API.BaseURL,
		SessionToken: settings.API.SessionToken,
		HTTPClient:   &http.Client{Timeout: settings.RequestTimeout()},
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	channelConfig, err := transport.ConfigFromSettings("chat", settings.Chat, settings.Reconnect, conversation)
	if err != nil {
		return err
	}
	channelConfig.Credentials = client

	printer := &printer{out: os.Stdout}
	channelConfig.OnStateChange = func(state transport.State) {
		if state.Status == transport.StatusFailed {
			printer.notice("connection failed: %s (type /reconnect to try again)", state.LastError)
		}
	}

	var resolver *chat.Resolver
	chatTransport, err := chat.NewTransport(chat.Config{
		Conversation: conversation,
		Channel:      channelConfig,
		Backend:      client,
		Hooks: chat.Hooks{
			OnOpen:    func() { printer.notice("connected") },
			OnMessage: func(message chat.Message) { printer.message(resolver, message) },
			OnClose: func(event transport.CloseEvent) {
				if event.Reconnecting {
					printer.notice("connection lost (%d), reconnecting", event.Code)
				}
			},
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	resolver, err = chat.NewResolver(chat.ResolverConfig{
		BaseURL:     settings.MediaBaseURL(),
		Prefix:      settings.Media.Prefix,
		Ceiling:     settings.Media.RecoveryCeiling,
		Placeholder: settings.Media.UnavailablePlaceholder,
		Recoverer:   client,
		Updater:     chatTransport.List(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	if loadHistory {
		if _, err := chatTransport.LoadHistory(ctx); err != nil {
			logger.Warn("history unavailable", "error", err)
		}
		printer.history(resolver, chatTransport.List())
	}

	if err := chatTransport.Connect(ctx); err != nil {
		return err
	}
	defer chatTransport.Close()

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	commands := &commandHandler{
		conversation: chatTransport,
		resolver:     resolver,
		printer:      printer,
		open:         func(name string) (io.ReadCloser, error) { return os.Open(name) },
	}
	for {
		if interactive {
			printer.prompt()
		}
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := commands.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `rendezvous-chat joins a conversation from the terminal.

Configuration comes from --config or $RENDEZVOUS_CONFIG.

Usage:
  rendezvous-chat --conversation ID [flags]

Commands (typed at the prompt):
  /upload PATH   upload a file
  /reconnect     reconnect after the channel gave up
  /recover ID    request a fresh link for a message's file
  /quit          leave

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
