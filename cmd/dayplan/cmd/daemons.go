package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"dayplan/backend/sqlite"
	"dayplan/internal/config"
	"dayplan/internal/connectivity"
	"dayplan/internal/push"
	"dayplan/internal/reminder"
	"dayplan/internal/server"
	"dayplan/internal/shutdown"
	"dayplan/internal/utils"
	"dayplan/internal/watcher"
)

// shutdownGrace bounds how long closers get after a signal.
const shutdownGrace = 10 * time.Second

// openServerStore opens the server database, honoring the test override.
func openServerStore(cmd *cobra.Command, cfg *Config, conf *config.Config) (*sqlite.Store, error) {
	path := cfg.ServerDBPath
	if path == "" {
		path = conf.ServerDBPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return sqlite.Open(path)
}

func loadConf(cmd *cobra.Command, cfg *Config) (*config.Config, error) {
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		utils.SetVerboseMode(true)
	}
	confPath := cfg.ConfigPath
	if flagPath, _ := cmd.Flags().GetString("config"); flagPath != "" {
		confPath = flagPath
	}
	conf, err := config.Load(confPath)
	if err != nil {
		return nil, err
	}
	if conf.Logging.Verbose {
		utils.SetVerboseMode(true)
	}
	return conf, nil
}

func newServeCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:           "serve",
		Short:         "Run the dayplan server",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConf(cmd, cfg)
			if err != nil {
				return err
			}

			store, err := openServerStore(cmd, cfg, conf)
			if err != nil {
				return err
			}

			mgr := shutdown.NewManager()
			stop := mgr.HandleSignals()
			defer stop()
			mgr.Register("server database", func(ctx context.Context) error {
				return store.Close()
			})

			if addr == "" {
				addr = conf.Server.Addr
			}

			srv := server.New(store, conf.Server.VAPIDPublicKey)
			_, _ = fmt.Fprintf(stdout, "Listening on %s\n", addr)
			serveErr := srv.ListenAndServe(mgr.Context(), addr)

			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := mgr.Close(closeCtx); err != nil {
				utils.Warnf("shutdown incomplete: %v", err)
			}
			return serveErr
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.AddCommand(newServeAccountCmd(stdout, cfg))

	return cmd
}

func newServeAccountCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "account",
		Short:         "Manage server accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "add [name]",
		Short:         "Create an account and print its token",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConf(cmd, cfg)
			if err != nil {
				return err
			}

			store, err := openServerStore(cmd, cfg, conf)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			account, err := store.CreateAccount(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(stdout, "Account %s created\n", account.Name)
			_, _ = fmt.Fprintf(stdout, "Token: %s\n", account.Token)
			return nil
		},
	})

	return cmd
}

func newDispatchCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:           "dispatch",
		Short:         "Send web push notifications for due tasks",
		Long: "dispatch scans every account for open tasks past their due time and\n" +
			"sends a web push to each subscription that has not been notified for\n" +
			"that due yet. Intended to run from cron or a timer.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConf(cmd, cfg)
			if err != nil {
				return err
			}

			store, err := openServerStore(cmd, cfg, conf)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var sender push.Sender
			if conf.Server.VAPIDPublicKey != "" && conf.Server.VAPIDPrivateKey != "" {
				sender = push.NewWebPushSender(
					conf.Server.VAPIDPublicKey,
					conf.Server.VAPIDPrivateKey,
					conf.Server.Subscriber,
				)
			}

			bg, bgErr := utils.NewBackgroundLogger()
			if bgErr == nil {
				defer bg.Close()
			}

			dispatcher := push.NewDispatcher(store, sender, conf.PushGrace())
			summary, err := dispatcher.Run(cmd.Context())
			if err != nil {
				if errors.Is(err, push.ErrMissingVAPID) {
					return utils.ErrPushNotConfigured()
				}
				return err
			}

			if bgErr == nil {
				bg.Printf("dispatch run: sent %d, pruned %d", summary.Sent, summary.Pruned)
			}
			_, _ = fmt.Fprintf(stdout, "sent %d, pruned %d\n", summary.Sent, summary.Pruned)
			return nil
		},
	}
}

func newRemindCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:           "remind",
		Short:         "Run the local reminder daemon",
		Long: "remind watches the local task database and raises a notification\n" +
			"when an open task reaches its due time. When logged in it also keeps\n" +
			"probing the server and flushes queued changes as soon as it is\n" +
			"reachable again.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			bg, err := utils.NewBackgroundLogger()
			if err != nil {
				utils.Warnf("background log unavailable: %v", err)
			} else {
				defer bg.Close()
				bg.Printf("remind daemon starting")
			}

			conf := a.conf
			if !conf.ReminderEnabled() {
				_, _ = fmt.Fprintln(stdout, "Reminders are disabled in the config")
				return nil
			}

			mgr := shutdown.NewManager()
			stop := mgr.HandleSignals()
			defer stop()
			ctx := mgr.Context()

			if err := a.load(ctx); err != nil {
				return err
			}

			notifier := a.newNotifier()
			mgr.Register("notifier", func(ctx context.Context) error {
				return notifier.Close()
			})

			// Other dayplan processes mutate the same database; reload
			// on change so reminders see fresh state.
			w, err := watcher.New(watcher.Config{
				Path: a.store.Path(),
				OnChange: func() {
					if err := a.engine.Load(ctx); err != nil {
						utils.Warnf("reload after database change failed: %v", err)
					}
				},
			})
			if err != nil {
				return err
			}
			go func() {
				if err := w.Run(ctx); err != nil && ctx.Err() == nil {
					utils.Warnf("database watcher stopped: %v", err)
				}
			}()

			mode := "guest"
			if a.engine.Authenticated() {
				mode = a.sess.Account

				mon := connectivity.NewMonitor(connectivity.PingFunc(a.client.Ping), connectivity.Config{
					ProbeInterval: conf.ProbeInterval(),
					ProbeTimeout:  conf.ProbeTimeout(),
				})
				mon.OnChange(func(online bool) {
					a.engine.SetOnline(ctx, online)
				})
				if conf.OfflineMode() != config.OfflineModeOffline {
					go mon.Run(ctx)
				}
			}

			sched := reminder.NewScheduler(reminder.Config{
				Enabled:  true,
				Interval: conf.ReminderInterval(),
				Grace:    conf.ReminderGrace(),
			}, mode, a.engine, a.store, notifier)

			_, _ = fmt.Fprintln(stdout, "Reminder daemon running, Ctrl-C to stop")
			sched.Run(ctx)

			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := mgr.Close(closeCtx); err != nil {
				utils.Warnf("shutdown incomplete: %v", err)
			}
			if bg != nil {
				bg.Printf("remind daemon stopped")
			}
			return nil
		},
	}
}
