package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"waffle-chat/internal/config"
	"waffle-chat/internal/telemetry"
)

// app carries state shared by every subcommand.
type app struct {
	v          *viper.Viper
	configPath string
	cfg        *config.ClientConfig
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "waffle",
		Short:         "Terminal client for Waffle chat rooms",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient(a.v, a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			telemetry.SetupLogger(cfg.LogLevel, "", true)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ./waffle.yaml)")
	flags.String("server", "", "chat backend URL")
	flags.String("email", "", "your email address")
	flags.String("name", "", "your first name")
	flags.String("cache", "", "path of the local message cache")
	flags.Duration("poll", 0, "poll interval")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	_ = a.v.BindPFlag("server.url", flags.Lookup("server"))
	_ = a.v.BindPFlag("user.email", flags.Lookup("email"))
	_ = a.v.BindPFlag("user.first_name", flags.Lookup("name"))
	_ = a.v.BindPFlag("cache_path", flags.Lookup("cache"))
	_ = a.v.BindPFlag("poll_interval", flags.Lookup("poll"))
	_ = a.v.BindPFlag("log_level", flags.Lookup("log-level"))

	root.AddCommand(
		a.roomsCmd(),
		a.watchCmd(),
		a.sendCmd(),
		a.createRoomCmd(),
		a.editMembersCmd(),
		a.membersCmd(),
		a.clearCmd(),
		a.subscribeCmd(),
	)
	return root
}
