package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/igorgomez/medidascorporais/internal/config"
	"github.com/igorgomez/medidascorporais/internal/domain"
	"github.com/igorgomez/medidascorporais/internal/identity"
	"github.com/igorgomez/medidascorporais/internal/localstore"
	"github.com/igorgomez/medidascorporais/internal/observability"
	"github.com/igorgomez/medidascorporais/internal/sdk"
	"github.com/igorgomez/medidascorporais/internal/session"
)

var errNotSignedIn = errors.New("not signed in: run `medidas login` first")

// cli holds the flags and the resources opened for one invocation.
type cli struct {
	configPath string
	serverURL  string
	dataDir    string
	verbose    bool

	cfg     config.Client
	logger  *zap.Logger
	local   *localstore.Store
	client  *sdk.Client
	gate    *session.Gate
	service *domain.Service
	unwatch func()
}

// execute runs one invocation and releases whatever it opened.
func execute(ctx context.Context, args []string, out io.Writer) error {
	root, c := newRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, c.close())
}

func newRootCmd() (*cobra.Command, *cli) {
	c := &cli{}

	root := &cobra.Command{
		Use:           "medidas",
		Short:         "Track body measurements",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.open(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "client config file (default ~/.medidas/config.yaml)")
	root.PersistentFlags().StringVar(&c.serverURL, "server", "", "server URL, overrides the config file")
	root.PersistentFlags().StringVar(&c.dataDir, "data-dir", "", "directory of the local database, overrides the config file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging on stderr")

	root.AddCommand(
		c.signUpCmd(),
		c.loginCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.addCmd(),
		c.listCmd(),
		c.deleteCmd(),
		c.timelineCmd(),
		c.radarCmd(),
		c.exportCmd(),
		c.migrateCmd(),
		c.dismissCmd(),
		c.legacyCmd(),
	)
	return root, c
}

func (c *cli) open(ctx context.Context) error {
	level := "warn"
	if c.verbose {
		level = "debug"
	}
	logger, err := observability.NewLogger(level)
	if err != nil {
		return err
	}
	c.logger = logger

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}
	path := c.configPath
	if path == "" {
		path = config.DefaultClientPath(home)
	}
	cfg, err := config.LoadClient(path, home)
	if err != nil {
		return err
	}
	if c.serverURL != "" {
		cfg.ServerURL = c.serverURL
	}
	if c.dataDir != "" {
		cfg.DataDir = c.dataDir
	}
	c.cfg = cfg

	c.local, err = localstore.Open(filepath.Join(cfg.DataDir, "local.db"))
	if err != nil {
		return err
	}
	c.client = sdk.New(cfg.ServerURL, cfg.Timeout)
	c.gate = session.NewGate(c.client, c.local, logger.Named("session"))
	c.unwatch = c.gate.Subscribe(func(u *identity.User) {
		if u == nil {
			logger.Debug("signed out")
			return
		}
		logger.Debug("signed in", zap.String("user_id", u.ID), zap.String("email", u.Email))
	})
	c.service = domain.NewService(c.client,
		domain.WithLegacyStore(c.local),
		domain.WithLogger(logger.Named("measurements")))

	if err := c.gate.Start(ctx); err != nil {
		logger.Debug("session not restored", zap.Error(err))
	}
	return nil
}

func (c *cli) close() error {
	if c.unwatch != nil {
		c.unwatch()
		c.unwatch = nil
	}
	if c.gate != nil {
		c.gate.Close()
	}
	var err error
	if c.local != nil {
		err = c.local.Close()
		c.local = nil
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	return err
}

// user returns the signed-in user or errNotSignedIn.
func (c *cli) user() (*identity.User, error) {
	u := c.gate.User()
	if u == nil {
		if msg := c.gate.Error(); msg != "" {
			return nil, errors.New(msg)
		}
		return nil, errNotSignedIn
	}
	return u, nil
}

// migrationNotice tells a signed-in user about measurements left on this device.
func (c *cli) migrationNotice(ctx context.Context, out io.Writer) {
	prompt, err := c.local.ShouldPromptMigration(ctx)
	if err != nil || !prompt {
		return
	}
	records, err := c.local.LoadLegacy(ctx)
	if err != nil {
		return
	}
	fmt.Fprintf(out, "\n%d measurements are saved on this device from before you signed in.\n", len(records))
	fmt.Fprintln(out, "Run `medidas migrate` to move them to your account or `medidas dismiss` to stop this reminder.")
}

// failure converts a façade error into the short message shown to the user.
func failure(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(domain.Message(err))
}
