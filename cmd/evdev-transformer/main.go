// Command evdev-transformer is the CLI entrypoint: it loads a named
// configuration, wires the Device Monitor, Config Store, IPC Listener and
// Hub together, and runs until signalled (§6 CLI).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evdev-transformer/evdev-transformer/internal/config"
	"github.com/evdev-transformer/evdev-transformer/internal/devmon"
	"github.com/evdev-transformer/evdev-transformer/internal/hub"
	"github.com/evdev-transformer/evdev-transformer/internal/hublog"
	"github.com/evdev-transformer/evdev-transformer/internal/ipc"
)

func configPath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "evdev_transformer", name+".json"), nil
}

func run(configName, logLevel string) error {
	log := hublog.New("main", hublog.ParseLevel(logLevel))

	path, err := configPath(configName)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	store, err := config.NewStore(cfg)
	if err != nil {
		return fmt.Errorf("config store: %w", err)
	}

	monitor := devmon.New(log.WithName("devmon"))

	listener, err := ipc.Listen(ipc.SocketPath(), log.WithName("ipc"))
	if err != nil {
		return fmt.Errorf("ipc listener: %w", err)
	}
	defer listener.Close()

	h := hub.New(log.WithName("hub"), store, monitor, listener)

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		close(stop)
	}()

	h.Run(stop)
	return nil
}

func newRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:          "evdev-transformer <config_name>",
		Short:        "Route and transform evdev input events onto virtual sinks",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], logLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log", viper.GetString("LOGLEVEL"), "log level: debug, info, warn, error")
	viper.BindEnv("LOGLEVEL")
	if v := viper.GetString("LOGLEVEL"); v != "" {
		logLevel = v
	}

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
