// Package cmd wires the dayplan command tree: local and account-backed
// task management, session handling, sync introspection, and the
// long-running serve/dispatch/remind entry points.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"dayplan/backend"
	"dayplan/backend/rest"
	"dayplan/internal/config"
	"dayplan/internal/connectivity"
	"dayplan/internal/localstore"
	"dayplan/internal/notification"
	"dayplan/internal/session"
	dsync "dayplan/internal/sync"
	"dayplan/internal/tui"
	"dayplan/internal/utils"
)

// Version is set at build time
var Version = "dev"

// Config holds invocation overrides, used by tests to isolate state.
type Config struct {
	ConfigPath   string          // config file (empty: XDG default)
	StorePath    string          // client database (empty: XDG default)
	ServerDBPath string          // server database (empty: config value)
	Keyring      session.Keyring // session token storage (nil: system keyring)
	Stdin        io.Reader       // interactive input (nil: os.Stdin)
	NoPrompt     bool
}

// Execute runs the CLI with the given arguments and IO writers.
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	rootCmd := NewDayplan(stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

// NewDayplan creates the root command with injectable IO.
func NewDayplan(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}

	cmd := &cobra.Command{
		Use:     "dayplan",
		Short:   "Offline-first task manager with reminders",
		Long: "dayplan manages dated tasks locally and, when logged in, keeps them\n" +
			"synchronized with a dayplan server. Changes made while offline are\n" +
			"queued and replayed when the server is reachable again.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().String("config", "", "Config file path")
	cmd.PersistentFlags().BoolP("no-prompt", "y", false, "Disable interactive prompts")

	cmd.AddCommand(newAddCmd(stdout, cfg))
	cmd.AddCommand(newListCmd(stdout, cfg))
	cmd.AddCommand(newDoneCmd(stdout, cfg))
	cmd.AddCommand(newEditCmd(stdout, cfg))
	cmd.AddCommand(newRmCmd(stdout, cfg))
	cmd.AddCommand(newLoginCmd(stdout, stderr, cfg))
	cmd.AddCommand(newLogoutCmd(stdout, cfg))
	cmd.AddCommand(newSyncCmd(stdout, cfg))
	cmd.AddCommand(newExportCmd(stdout, cfg))
	cmd.AddCommand(newImportCmd(stdout, cfg))
	cmd.AddCommand(newTUICmd(cfg))
	cmd.AddCommand(newServeCmd(stdout, cfg))
	cmd.AddCommand(newDispatchCmd(stdout, cfg))
	cmd.AddCommand(newRemindCmd(stdout, cfg))

	return cmd
}

// app bundles the client-side state one command invocation works with.
type app struct {
	conf   *config.Config
	store  *localstore.Store
	sess   session.Session
	client *rest.Client
	engine *dsync.Engine
}

// newApp loads config, opens the local store, resolves the session, and
// builds the sync engine (guest mode when not logged in).
func newApp(cmd *cobra.Command, cfg *Config) (*app, error) {
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

	storePath := cfg.StorePath
	if storePath == "" {
		storePath = config.LocalStorePath()
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := localstore.Open(storePath)
	if err != nil {
		return nil, err
	}

	a := &app{conf: conf, store: store}

	sess, loggedIn, err := a.sessions(cfg).Current(cmd.Context())
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if loggedIn {
		a.sess = sess
		a.client = rest.New(sess.ServerURL, sess.Token)
		a.engine = dsync.NewEngine(sess.Account, a.client, store)
	} else {
		a.engine = dsync.NewEngine("", nil, store)
	}

	return a, nil
}

func (a *app) Close() {
	_ = a.store.Close()
}

// newNotifier builds the notification manager, defaulting the log
// channel path into the user data directory.
func (a *app) newNotifier() *notification.Manager {
	cfg := a.conf.Notification
	if cfg.Log.Path == "" {
		cfg.Log.Path = a.conf.NotificationLogPath()
	}
	return notification.NewManager(cfg)
}

func (a *app) sessions(cfg *Config) *session.Manager {
	if cfg.Keyring != nil {
		return session.NewManager(a.store, session.WithKeyring(cfg.Keyring))
	}
	return session.NewManager(a.store)
}

// connect applies the configured offline mode. In auto mode one probe
// decides; a transition to online flushes the queue as a side effect.
func (a *app) connect(ctx context.Context) {
	if a.client == nil {
		return
	}
	switch a.conf.OfflineMode() {
	case config.OfflineModeOffline:
		// Forced offline: every mutation queues.
	case config.OfflineModeOnline:
		a.engine.SetOnline(ctx, true)
	default:
		mon := connectivity.NewMonitor(connectivity.PingFunc(a.client.Ping), connectivity.Config{
			ProbeTimeout: a.conf.ProbeTimeout(),
		})
		a.engine.SetOnline(ctx, mon.Check(ctx))
	}
}

// load connects and populates the engine's task list.
func (a *app) load(ctx context.Context) error {
	a.connect(ctx)
	return a.engine.Load(ctx)
}

// noPrompt merges the flag and the injected test config.
func noPrompt(cmd *cobra.Command, cfg *Config) bool {
	flag, _ := cmd.Flags().GetBool("no-prompt")
	return flag || cfg.NoPrompt
}

// displayID renders a task id for output: the server number, or a ~
// prefixed placeholder for tasks not yet acknowledged by the server.
func displayID(id backend.ID) string {
	if n, ok := id.Remote(); ok {
		return strconv.FormatInt(n, 10)
	}
	local, _ := id.Local()
	if len(local) > 8 {
		local = local[:8]
	}
	return "~" + local
}

// findTask resolves a task reference: a numeric server id, a ~ prefixed
// placeholder id, an exact title, or a unique title substring.
func findTask(tasks []backend.Task, term string) (backend.Task, error) {
	if n, err := strconv.ParseInt(term, 10, 64); err == nil {
		for _, t := range tasks {
			if r, ok := t.ID.Remote(); ok && r == n {
				return t, nil
			}
		}
		return backend.Task{}, utils.ErrTaskNotFound(term)
	}

	if rest, ok := strings.CutPrefix(term, "~"); ok {
		for _, t := range tasks {
			if l, lok := t.ID.Local(); lok && strings.HasPrefix(l, rest) {
				return t, nil
			}
		}
		return backend.Task{}, utils.ErrTaskNotFound(term)
	}

	lower := strings.ToLower(term)
	var exact, partial []backend.Task
	for _, t := range tasks {
		title := strings.ToLower(t.Title)
		if title == lower {
			exact = append(exact, t)
		} else if strings.Contains(title, lower) {
			partial = append(partial, t)
		}
	}
	if len(exact) == 1 {
		return exact[0], nil
	}
	if len(exact) > 1 {
		return backend.Task{}, fmt.Errorf("%q matches %d tasks, use the id instead", term, len(exact))
	}
	if len(partial) == 1 {
		return partial[0], nil
	}
	if len(partial) > 1 {
		return backend.Task{}, fmt.Errorf("%q matches %d tasks, use the id instead", term, len(partial))
	}
	return backend.Task{}, utils.ErrTaskNotFound(term)
}

// queuedNote marks output of mutations that have not reached the server.
func (a *app) queuedNote() string {
	if a.engine.Authenticated() && a.engine.State() != dsync.StateSynced {
		return " (queued for sync)"
	}
	return ""
}

func newAddCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	var dueDate, dueTime, priority, description string

	cmd := &cobra.Command{
		Use:           "add [title]",
		Short:         "Add a task",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if err := a.load(ctx); err != nil {
				return err
			}

			task := backend.Task{Title: args[0], Description: description}
			if task.DueDate, err = utils.ParseDateFlag(dueDate); err != nil {
				return err
			}
			if task.DueTime, err = utils.ParseTimeFlag(dueTime); err != nil {
				return err
			}
			if priority != "" {
				if task.Priority, err = backend.ParsePriority(priority); err != nil {
					return err
				}
			}

			created, err := a.engine.Create(ctx, task)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(stdout, "Added task %s: %s%s\n",
				displayID(created.ID), created.Title, a.queuedNote())
			return nil
		},
	}

	cmd.Flags().StringVarP(&dueDate, "due", "d", "", "Due date (YYYY-MM-DD, today, tomorrow, +Nd/w/m)")
	cmd.Flags().StringVarP(&dueTime, "time", "t", "", "Due time (HH:MM)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Priority (low, medium, high)")
	cmd.Flags().StringVar(&description, "desc", "", "Task description")

	return cmd
}

func newListCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	var showAll bool

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List tasks",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if err := a.load(ctx); err != nil {
				return err
			}

			tasks := a.engine.Tasks()
			backend.SortTasks(tasks)

			shown := 0
			for _, t := range tasks {
				if t.Done && !showAll {
					continue
				}
				shown++

				check := "[ ]"
				if t.Done {
					check = "[x]"
				}
				due := t.DueDate
				if t.DueTime != "" {
					due += " " + t.DueTime
				}
				_, _ = fmt.Fprintf(stdout, "%-10s %s %-8s %-12s %s\n",
					displayID(t.ID), check, strings.ToLower(string(t.Priority)), due, t.Title)
			}
			if shown == 0 {
				_, _ = fmt.Fprintln(stdout, "No tasks")
			}

			if a.engine.Authenticated() {
				if n := a.engine.PendingCount(ctx); n > 0 {
					_, _ = fmt.Fprintf(stdout, "\n%d change(s) queued for sync\n", n)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showAll, "all", "a", false, "Include completed tasks")

	return cmd
}

func newDoneCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:           "done [task]",
		Short:         "Mark a task as completed",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if err := a.load(ctx); err != nil {
				return err
			}

			task, err := findTask(a.engine.Tasks(), args[0])
			if err != nil {
				return err
			}

			done := true
			if err := a.engine.Update(ctx, task.ID, backend.Patch{Done: &done}); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(stdout, "Completed: %s%s\n", task.Title, a.queuedNote())
			return nil
		},
	}
}

func newEditCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	var title, description, dueDate, dueTime, priority string
	var markDone, markOpen bool

	cmd := &cobra.Command{
		Use:           "edit [task]",
		Short:         "Edit task fields",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if err := a.load(ctx); err != nil {
				return err
			}

			task, err := findTask(a.engine.Tasks(), args[0])
			if err != nil {
				return err
			}

			var patch backend.Patch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if cmd.Flags().Changed("due") {
				d, err := utils.ParseDateFlag(dueDate)
				if err != nil {
					return err
				}
				patch.DueDate = &d
			}
			if cmd.Flags().Changed("time") {
				tm, err := utils.ParseTimeFlag(dueTime)
				if err != nil {
					return err
				}
				patch.DueTime = &tm
			}
			if cmd.Flags().Changed("priority") {
				p, err := backend.ParsePriority(priority)
				if err != nil {
					return err
				}
				patch.Priority = &p
			}
			if markDone {
				done := true
				patch.Done = &done
			} else if markOpen {
				done := false
				patch.Done = &done
			}
			if patch.IsZero() {
				return fmt.Errorf("nothing to change, pass at least one field flag")
			}

			if err := a.engine.Update(ctx, task.ID, patch); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(stdout, "Updated: %s%s\n", task.Title, a.queuedNote())
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVarP(&dueDate, "due", "d", "", "New due date (YYYY-MM-DD, use \"\" to clear)")
	cmd.Flags().StringVarP(&dueTime, "time", "t", "", "New due time (HH:MM, use \"\" to clear)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "New priority (low, medium, high)")
	cmd.Flags().BoolVar(&markDone, "done", false, "Mark completed")
	cmd.Flags().BoolVar(&markOpen, "not-done", false, "Mark not completed")

	return cmd
}

func newRmCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:           "rm [task]",
		Short:         "Delete a task",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if err := a.load(ctx); err != nil {
				return err
			}

			task, err := findTask(a.engine.Tasks(), args[0])
			if err != nil {
				return err
			}

			if !noPrompt(cmd, cfg) {
				prompt := fmt.Sprintf("Delete %q?", task.Title)
				if !utils.PromptYesNoWithReader(prompt, cfg.Stdin, stdout) {
					_, _ = fmt.Fprintln(stdout, "Cancelled")
					return nil
				}
			}

			if err := a.engine.Delete(ctx, task.ID); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(stdout, "Deleted: %s%s\n", task.Title, a.queuedNote())
			return nil
		},
	}
}

func newLoginCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:           "login [server-url] [account]",
		Short:         "Connect to a dayplan server",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			serverURL, account := args[0], args[1]

			if token == "" {
				token, err = session.PromptToken(cfg.Stdin, stderr, account)
				if err != nil {
					return err
				}
			}

			client := rest.New(serverURL, token)
			if _, err := client.ListTasks(ctx); err != nil {
				if backend.IsAuthError(err) {
					return utils.ErrAuthenticationFailed()
				}
				// Unreachable server: accept the session and let the
				// sync queue carry changes until it comes back.
				_, _ = fmt.Fprintf(stderr, "Warning: could not verify token, server unreachable (%v)\n", err)
			}

			if err := a.sessions(cfg).Save(ctx, session.Session{
				Account:   account,
				ServerURL: serverURL,
				Token:     token,
			}); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(stdout, "Logged in as %s at %s\n", account, serverURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Bearer token (prompted when omitted)")

	return cmd
}

func newLogoutCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:           "logout",
		Short:         "Forget the stored session",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.sessions(cfg).Clear(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(stdout, "Logged out")
			return nil
		},
	}
}

func newSyncCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sync",
		Short:         "Push queued changes to the server",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.engine.Authenticated() {
				return utils.ErrNotLoggedIn()
			}

			ctx := cmd.Context()
			// SetOnline flushes on the offline-to-online transition.
			a.connect(ctx)

			if !a.engine.Online() {
				pending := a.engine.PendingCount(ctx)
				return utils.ErrServerUnreachable(
					fmt.Sprintf("%d operation(s) remain queued", pending))
			}

			if err := a.engine.Flush(ctx); err != nil {
				return err
			}
			if pending := a.engine.PendingCount(ctx); pending > 0 {
				_, _ = fmt.Fprintf(stdout, "Sync incomplete, %d operation(s) still queued\n", pending)
				return nil
			}
			_, _ = fmt.Fprintln(stdout, "Synced")
			return nil
		},
	}

	cmd.AddCommand(newSyncStatusCmd(stdout, cfg))
	cmd.AddCommand(newSyncQueueCmd(stdout, cfg))

	return cmd
}

func newSyncStatusCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show session and queue state",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()

			if !a.engine.Authenticated() {
				_, _ = fmt.Fprintln(stdout, "Mode:    guest (local only)")
				return nil
			}

			a.connect(ctx)
			reachable := "unreachable"
			if a.engine.Online() {
				reachable = "reachable"
			}

			_, _ = fmt.Fprintf(stdout, "Account: %s\n", a.sess.Account)
			_, _ = fmt.Fprintf(stdout, "Server:  %s (%s)\n", a.sess.ServerURL, reachable)
			_, _ = fmt.Fprintf(stdout, "State:   %s\n", a.engine.State())
			_, _ = fmt.Fprintf(stdout, "Pending: %d operation(s)\n", a.engine.PendingCount(ctx))
			return nil
		},
	}
}

func newSyncQueueCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "queue",
		Short:         "Show queued operations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.engine.Authenticated() {
				return utils.ErrNotLoggedIn()
			}

			ops, err := a.store.PendingOps(cmd.Context(), a.sess.Account)
			if err != nil {
				return err
			}
			if len(ops) == 0 {
				_, _ = fmt.Fprintln(stdout, "Queue is empty")
				return nil
			}

			for _, queued := range ops {
				op, err := dsync.DecodeOp(queued.Payload)
				if err != nil {
					_, _ = fmt.Fprintf(stdout, "%4d  %s  (undecodable)\n",
						queued.Seq, queued.Created.Format("2006-01-02 15:04:05"))
					continue
				}

				what := ""
				switch op.Kind {
				case dsync.OpCreate:
					what = fmt.Sprintf("create %q", op.Task.Title)
				case dsync.OpUpdate:
					what = fmt.Sprintf("update %s", displayID(op.Target))
				case dsync.OpDelete:
					what = fmt.Sprintf("delete %s", displayID(op.Target))
				}
				_, _ = fmt.Fprintf(stdout, "%4d  %s  %s\n",
					queued.Seq, queued.Created.Format("2006-01-02 15:04:05"), what)
			}
			return nil
		},
	}

	cmd.AddCommand(newSyncQueueClearCmd(stdout, cfg))

	return cmd
}

func newSyncQueueClearCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:           "clear",
		Short:         "Discard queued operations without sending them",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.engine.Authenticated() {
				return utils.ErrNotLoggedIn()
			}

			ctx := cmd.Context()
			pending := a.engine.PendingCount(ctx)
			if pending == 0 {
				_, _ = fmt.Fprintln(stdout, "Queue is empty")
				return nil
			}

			if !noPrompt(cmd, cfg) {
				prompt := fmt.Sprintf("Discard %d queued operation(s)? They will never reach the server", pending)
				if !utils.PromptYesNoWithReader(prompt, cfg.Stdin, stdout) {
					_, _ = fmt.Fprintln(stdout, "Cancelled")
					return nil
				}
			}

			if err := a.store.ClearOps(ctx, a.sess.Account); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "Discarded %d operation(s)\n", pending)
			return nil
		},
	}
}

// exportTask is the stable JSON shape for export/import. Ids are not
// exported: imported tasks are new tasks.
type exportTask struct {
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	DueDate     string           `json:"due_date,omitempty"`
	DueTime     string           `json:"due_time,omitempty"`
	Done        bool             `json:"done"`
	Priority    backend.Priority `json:"priority"`
}

func newExportCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:           "export [file]",
		Short:         "Write all tasks as JSON",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if err := a.load(ctx); err != nil {
				return err
			}

			tasks := a.engine.Tasks()
			backend.SortTasks(tasks)
			out := make([]exportTask, 0, len(tasks))
			for _, t := range tasks {
				out = append(out, exportTask{
					Title:       t.Title,
					Description: t.Description,
					DueDate:     t.DueDate,
					DueTime:     t.DueTime,
					Done:        t.Done,
					Priority:    t.Priority,
				})
			}

			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode tasks: %w", err)
			}
			data = append(data, '\n')

			if len(args) == 1 {
				if err := os.WriteFile(args[0], data, 0644); err != nil {
					return fmt.Errorf("failed to write export: %w", err)
				}
				_, _ = fmt.Fprintf(stdout, "Exported %d task(s) to %s\n", len(out), args[0])
				return nil
			}

			_, _ = stdout.Write(data)
			return nil
		},
	}
}

func newImportCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:           "import [file]",
		Short:         "Create tasks from a JSON export",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var data []byte
			if len(args) == 1 {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(cfg.Stdin)
			}
			if err != nil {
				return fmt.Errorf("failed to read import: %w", err)
			}

			var in []exportTask
			if err := json.Unmarshal(data, &in); err != nil {
				return fmt.Errorf("invalid import JSON: %w", err)
			}

			ctx := cmd.Context()
			if err := a.load(ctx); err != nil {
				return err
			}

			imported := 0
			for _, e := range in {
				_, err := a.engine.Create(ctx, backend.Task{
					Title:       e.Title,
					Description: e.Description,
					DueDate:     e.DueDate,
					DueTime:     e.DueTime,
					Done:        e.Done,
					Priority:    e.Priority,
				})
				if err != nil {
					return fmt.Errorf("failed to import %q: %w", e.Title, err)
				}
				imported++
			}

			_, _ = fmt.Fprintf(stdout, "Imported %d task(s)%s\n", imported, a.queuedNote())
			return nil
		},
	}
}

func newTUICmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:           "tui",
		Short:         "Open the interactive task view",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			a.connect(cmd.Context())

			program := tea.NewProgram(tui.New(a.engine, a.sess.Account), tea.WithAltScreen())
			if _, err := program.Run(); err != nil {
				return fmt.Errorf("failed to run tui: %w", err)
			}
			return nil
		},
	}
}
