package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/clickr/internal/audio"
	"github.com/jmylchreest/clickr/internal/client"
	"github.com/jmylchreest/clickr/internal/config"
	"github.com/jmylchreest/clickr/internal/dbus"
)

var connectOpts struct {
	addr   string
	port   int
	volume int
	notify bool
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a host and play a sound on each ping",
	Long: `Connect to a 'clickr host' and play the configured sound for every ping.

The connection is kept open forever. If the host goes away, or is silent for
longer than the read timeout, clickr reconnects after a fixed backoff.`,
	Args: cobra.NoArgs,
	RunE: runConnect,
}

func init() {
	rootCmd.AddCommand(connectCmd)

	connectCmd.Flags().StringVar(&connectOpts.addr, "addr", "",
		"Host address (default from config: 127.0.0.1)")
	connectCmd.Flags().IntVarP(&connectOpts.port, "port", "p", 0,
		"Host port (default from config: 63063)")
	connectCmd.Flags().IntVar(&connectOpts.volume, "volume", 0,
		"Playback volume 0-100 (default from config: 100)")
	connectCmd.Flags().BoolVar(&connectOpts.notify, "notify", false,
		"Also show a desktop notification for each ping")
}

func runConnect(cmd *cobra.Command, args []string) error {
	cc := cfg.Client
	if cmd.Flags().Changed("addr") {
		cc.Addr = connectOpts.addr
	}
	if cmd.Flags().Changed("port") {
		cc.Port = connectOpts.port
	}
	if cmd.Flags().Changed("volume") {
		if connectOpts.volume < 0 || connectOpts.volume > 100 {
			return fmt.Errorf("volume must be between 0 and 100, got %d", connectOpts.volume)
		}
		cfg.Audio.Volume = connectOpts.volume
	}
	if cmd.Flags().Changed("notify") {
		cfg.Notify.Desktop = connectOpts.notify
	}

	player, cleanup, err := newPlayer(cfg.Audio)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := []client.Option{client.WithLogger(logger)}
	if cfg.Notify.Desktop {
		notifier := dbus.NewNotifier("audio-volume-high", logger)
		defer func() { _ = notifier.Close() }()
		opts = append(opts, client.WithNotifier(notifier))
	}

	c, err := client.New(client.Config{
		URL:           client.URL(cc.Addr, cc.Port, cc.Path),
		Sound:         cfg.Audio.Sound,
		Volume:        cfg.VolumeFraction(),
		ReadTimeout:   cc.ReadTimeout.Duration(),
		Backoff:       cc.Backoff.Duration(),
		DialTimeout:   cc.DialTimeout.Duration(),
		NotifySummary: cfg.Notify.Summary,
		NotifyBody:    cfg.Notify.Body,
	}, player, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("client stopped")
	return nil
}

// newPlayer builds the configured audio backend. A nil player means pings
// are only logged.
func newPlayer(ac config.AudioConfig) (client.Player, func(), error) {
	if !ac.Enabled {
		return nil, func() {}, nil
	}

	if ac.Backend != config.BackendBeep {
		return audio.NewCommandPlayer(ac.Command, ac.Args), func() {}, nil
	}

	p := audio.NewPlayer(logger)
	if err := p.Preload(ac.Sound); err != nil {
		// The file may appear later; the watcher and the next ping retry.
		logger.Warn("failed to preload sound", "path", ac.Sound, "error", err)
	}

	w, err := audio.NewWatcher(p, logger)
	if err != nil {
		p.Close()
		return nil, nil, fmt.Errorf("failed to create sound watcher: %w", err)
	}
	if err := w.Watch(ac.Sound); err != nil {
		logger.Warn("failed to watch sound file", "path", ac.Sound, "error", err)
	}
	w.Start()

	return p, func() {
		_ = w.Stop()
		p.Close()
	}, nil
}
