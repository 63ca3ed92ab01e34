package commands

import (
	"github.com/spf13/cobra"

	"cipherlog/internal/app"
)

var (
	home       string
	configPath string
	storeKind  string
	partition  string
	logLevel   string
	origin     string
	appCtx     *app.App
)

// Execute runs the CLI with os.Args.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cipherlog",
		Short:        "End-to-end encrypted group chat log",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("home") {
				cfg.Home = home
			}
			if flags.Changed("store") {
				cfg.Store = storeKind
			}
			if flags.Changed("partition") {
				cfg.Partition = partition
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("origin") {
				cfg.Origin = origin
			}
			appCtx, err = app.New(cfg)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if appCtx == nil {
				return nil
			}
			err := appCtx.Close()
			appCtx = nil
			return err
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&home, "home", "", "state dir (default ~/.cipherlog)")
	pf.StringVar(&configPath, "config", "", "YAML config file")
	pf.StringVar(&storeKind, "store", "", "store backend: file, badger or memory")
	pf.StringVar(&partition, "partition", "", "log partition: group or shared")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&origin, "origin", "", "fixed origin used for the identity hash")

	root.AddCommand(
		keygenCmd(),
		chatCmd(),
		sendCmd(),
		readCmd(),
		statusCmd(),
		forgetCmd(),
		fingerprintCmd(),
		versionCmd(),
	)
	return root
}
