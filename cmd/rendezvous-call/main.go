// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// rendezvous-call joins a call context as one participant and logs the
// call lifecycle. It connects to the signaling channel with a realtime
// token from the backend, announces readiness, and negotiates a direct
// media session with whoever else is in the context. Local media is a
// synthetic Opus silence track (plus an idle VP8 track unless
// --audio-only), which is enough to exercise negotiation, ICE, and the
// media path end to end.
//
// Two instances pointed at the same call context with different user
// IDs connect to each other: the smaller ID sends the offer.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/rendezvous/call"
	"github.com/bureau-foundation/rendezvous/lib/config"
	"github.com/bureau-foundation/rendezvous/lib/identity"
	"github.com/bureau-foundation/rendezvous/lib/process"
	"github.com/bureau-foundation/rendezvous/lib/version"
	"github.com/bureau-foundation/rendezvous/messaging"
	"github.com/bureau-foundation/rendezvous/signaling"
	"github.com/bureau-foundation/rendezvous/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	configPath string
	callID     string
	userID     string
	userName   string
	incoming   string
	start      bool
	audioOnly  bool
	loopback   bool
	logFormat  string
	debug      bool
}

func run() error {
	var opts options

	flagSet := pflag.NewFlagSet("rendezvous-call", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to rendezvous.yaml (default: $RENDEZVOUS_CONFIG)")
	flagSet.StringVar(&opts.callID, "call", "", "call context identifier (required)")
	flagSet.StringVar(&opts.userID, "user-id", "", "local participant identifier (required)")
	flagSet.StringVar(&opts.userName, "user-name", "", "local participant display name")
	flagSet.StringVar(&opts.incoming, "incoming", "accept", "what to do with an incoming call: accept, decline, or ignore")
	flagSet.BoolVar(&opts.start, "start", false, "place the call as soon as the channel opens instead of announcing readiness")
	flagSet.BoolVar(&opts.audioOnly, "audio-only", false, "send audio only")
	flagSet.BoolVar(&opts.loopback, "loopback", false, "gather loopback ICE candidates (both participants on one host)")
	flagSet.StringVar(&opts.logFormat, "log-format", process.LogFormatAuto, "log format: auto, text, or json")
	flagSet.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("rendezvous-call")
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
	if opts.callID == "" {
		return fmt.Errorf("--call is required")
	}
	switch opts.incoming {
	case "accept", "decline", "ignore":
	default:
		return fmt.Errorf("--incoming must be accept, decline, or ignore, got %q", opts.incoming)
	}
	localID, err := identity.Parse(opts.userID)
	if err != nil {
		return fmt.Errorf("--user-id: %w", err)
	}

	logger, err := process.NewLogger(os.Stderr, opts.logFormat, opts.debug)
	if err != nil {
		return err
	}
	logger = logger.With("call", opts.callID, "user", localID.String())

	settings, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runCall(ctx, settings, opts, localID, logger)
}

func loadConfig(path string) (*config.Config, error) {
	var settings *config.Config
	var err error
	if path != "" {
		settings, err = config.LoadFile(path)
	} else {
		settings, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return settings, nil
}

func runCall(ctx context.Context, settings *config.Config, opts options, localID identity.ID, logger *slog.Logger) error {
	client, err := messaging.NewClient(messaging.ClientConfig{
		BaseURL:      settings.API.BaseURL,
		SessionToken: settings.API.SessionToken,
		HTTPClient:   &http.Client{Timeout: settings.RequestTimeout()},
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	channelConfig, err := transport.ConfigFromSettings("signaling", settings.Signaling, settings.Reconnect, opts.callID)
	if err != nil {
		return err
	}
	channelConfig.Credentials = client
	channelConfig.Logger = logger
	channelConfig.OnStateChange = func(state transport.State) {
		logger.Debug("signaling channel state",
			"status", state.Status.String(),
			"retry", state.RetryCount,
			"generation", state.Generation,
		)
	}
	signals := signaling.NewTransport(channelConfig)

	newPeer, err := call.NewPionPeerFactory(call.PionConfig{
		ICE:             call.ICEConfigFromSettings(settings.ICE),
		IncludeLoopback: opts.loopback,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	var session *call.Session
	var remotePackets atomic.Int64
	session, err = call.NewSession(call.Config{
		Local:       call.Participant{ID: localID, Name: opts.userName},
		Signaler:    signals,
		Media:       &call.SampleMediaSource{Logger: logger},
		NewPeer:     newPeer,
		Constraints: call.MediaConstraints{Audio: true, Video: !opts.audioOnly},
		Hooks: call.Hooks{
			OnStateChange: func(snapshot call.Snapshot) {
				logger.Info("call state",
					"state", snapshot.State.String(),
					"remote", snapshot.Remote.ID.String(),
					"remote_name", snapshot.Remote.Name,
					"attempt", snapshot.Attempt,
				)
			},
			OnIncomingCall: func(caller call.Participant) {
				logger.Info("incoming call", "from", caller.ID.String(), "name", caller.Name, "action", opts.incoming)
				// Hooks run on the session loop; commands go through it.
				switch opts.incoming {
				case "accept":
					go func() { logCommand(logger, "accept", session.Accept(ctx)) }()
				case "decline":
					go func() { logCommand(logger, "decline", session.Decline(ctx)) }()
				}
			},
			OnError: func(err error) {
				logger.Warn("call error", "error", err)
			},
			OnRemoteTrack: func(track call.RemoteTrack) {
				if track.Track == nil {
					return
				}
				go func() {
					for {
						if _, _, err := track.Track.ReadRTP(); err != nil {
							return
						}
						remotePackets.Add(1)
					}
				}()
			},
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	runDone := make(chan error, 1)
	go func() { runDone <- session.Run(ctx) }()

	// The channel outlives ctx so the hang-up sent on shutdown still
	// has a connection to go out on.
	channelCtx, cancelChannel := context.WithCancel(context.Background())
	defer cancelChannel()
	err = signals.Connect(channelCtx, signaling.Handler{
		OnOpen: func() {
			go func() {
				if opts.start {
					logCommand(logger, "start call", session.StartCall(ctx))
					return
				}
				logCommand(logger, "ready", session.Ready(ctx))
			}()
		},
		OnMessage: session.HandleSignal,
		OnClose: func(event transport.CloseEvent) {
			logger.Info("signaling channel closed",
				"code", event.Code,
				"reason", event.Reason,
				"reconnecting", event.Reconnecting,
			)
		},
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	runErr := <-runDone
	signals.Close()
	logger.Info("left call",
		"final_state", session.Snapshot().State.String(),
		"remote_packets", remotePackets.Load(),
	)
	return runErr
}

// logCommand is the body of the goroutines issuing session commands.
func logCommand(logger *slog.Logger, name string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, call.ErrBusy), errors.Is(err, call.ErrStopped), errors.Is(err, context.Canceled):
		logger.Debug("session command skipped", "command", name, "error", err)
	default:
		logger.Warn("session command failed", "command", name, "error", err)
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `rendezvous-call joins a call context and negotiates a peer-to-peer media session.

Configuration comes from --config or $RENDEZVOUS_CONFIG. The backend
session token (api.session_token) is exchanged for a realtime token on
every connection attempt.

Usage:
  rendezvous-call --call ID --user-id ID [flags]

Examples:
  # Two participants on one machine
  rendezvous-call --call 42 --user-id 5 --loopback
  rendezvous-call --call 42 --user-id 9 --loopback

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
