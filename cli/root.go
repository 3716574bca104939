package cli

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"cmdvault/config"
	"cmdvault/db"
	"cmdvault/logging"
	"cmdvault/ui"
)

// session is what every subcommand runs against, opened once per invocation.
type session struct {
	cfg *config.Config
	log *zap.Logger
	db  *db.DB
}

func (s *session) close() {
	if s.db != nil {
		s.db.Close()
	}
	if s.log != nil {
		_ = s.log.Sync()
	}
}

type rootFlags struct {
	configFile string
	dbPath     string
	verbose    bool
}

// newRootCmd builds the command tree and the session its commands share.
// The caller closes the session once the tree has executed.
func newRootCmd() (*cobra.Command, *session) {
	flags := &rootFlags{}
	s := &session{}

	root := &cobra.Command{
		Use:   "cmdvault",
		Short: "Store, browse and re-run parameterized shell commands",
		Long: `cmdvault keeps shell commands in a local database. Commands may contain
@name or @name:description placeholders that are filled in when they run.

Run without arguments to open the interactive browser.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.open(cmd, flags)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowser(s)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "config file (default $CMDVAULT_HOME/config.yaml)")
	pf.StringVar(&flags.dbPath, "db", "", "database path (default $CMDVAULT_HOME/commands.db)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newAddCmd(s),
		newSearchCmd(s),
		newListCmd(s),
		newTagCmd(s),
		newExecCmd(s),
		newDeleteCmd(s),
	)

	return root, s
}

func (s *session) open(cmd *cobra.Command, flags *rootFlags) error {
	config.SetViperDefaults()
	config.Init(flags.configFile)

	pf := cmd.Root().PersistentFlags()
	if err := viper.BindPFlag("verbose", pf.Lookup("verbose")); err != nil {
		return err
	}
	if err := viper.BindPFlag("db_path", pf.Lookup("db")); err != nil {
		return err
	}

	if err := config.Read(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	s.cfg = cfg

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	s.log = logger.With(zap.String("cmd", cmd.CommandPath()))

	database, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	s.db = database

	s.log.Debug("session opened", zap.String("db", cfg.DBPath), zap.String("home", cfg.Home))
	return nil
}

func runBrowser(s *session) error {
	app, err := ui.NewApp(s.db, ui.Options{
		Shell:     s.cfg.Shell,
		Record:    s.cfg.Record,
		MaxOutput: s.cfg.MaxOutputBytes,
		Logger:    s.log,
	})
	if err != nil {
		return fmt.Errorf("creating app: %w", err)
	}

	p := tea.NewProgram(app, tea.WithAltScreen())
	app.Attach(p)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running app: %w", err)
	}
	return nil
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	root, s := newRootCmd()
	defer s.close()

	err := root.ExecuteContext(context.Background())
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// ExitError carries the exit code of an executed command so the process can
// exit with it.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// silenceOnExitError suppresses Cobra's error/usage printing when the error is
// an ExitError (non-zero exit code). The command's own output already tells
// the story.
func silenceOnExitError(cmd *cobra.Command, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		cmd.SilenceErrors = true
		cmd.SilenceUsage = true
	}
}
