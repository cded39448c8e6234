package commands

import (
	"os"

	"github.com/spf13/cobra"

	"securechannel/internal/app"
)

// cfg is populated from the persistent flags.
var cfg = app.DefaultConfig()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "channelctl",
		Short:        "Developer tool for the X3DH / Double Ratchet secure channel",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.ConfigureLogging(); err != nil {
				return err
			}
			return os.MkdirAll(cfg.Home, 0o700)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&cfg.Home, "home", cfg.Home, "state directory")
	f.StringVarP(&cfg.Passphrase, "passphrase", "p", "", "passphrase sealing saved ratchet state")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (trace, debug, info, warn, error)")
	f.IntVar(&cfg.OneTimeKeyCount, "one-time-keys", cfg.OneTimeKeyCount, "one-time prekeys per identity")
	f.Uint32Var(&cfg.CacheWindow, "cache-window", cfg.CacheWindow, "derived message keys kept per chain")
	f.Uint32Var(&cfg.DhRotationInterval, "dh-interval", cfg.DhRotationInterval, "sent messages between DH ratchets")
	f.DurationVar(&cfg.SessionTimeout, "session-timeout", cfg.SessionTimeout, "absolute session lifetime")

	root.AddCommand(demoCmd(), inspectCmd())
	return root
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return newRootCmd().Execute()
}
