// webos-remote controls webOS TVs over the local network.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markus-barta/webos-remote/internal/bridge"
	"github.com/markus-barta/webos-remote/internal/commands"
	"github.com/markus-barta/webos-remote/internal/config"
	"github.com/markus-barta/webos-remote/internal/credstore"
	"github.com/markus-barta/webos-remote/internal/remote"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

const disconnectTimeout = 5 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flags override the environment when set.
type flags struct {
	logLevel string
	keyStore string
	keyFile  string
	port     int
	standby  bool
}

func rootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "webos-remote <host> <command> [args...]",
		Short: "Control a webOS TV",
		Long: `Connects to a webOS TV, runs one command and prints the result as JSON.

Environment variables:
  WEBOS_HOST                Device address (for serve when no host is given)
  WEBOS_PORT                Control socket port (default: 3000)
  WEBOS_KEY_STORE           Credential backend: file, sqlite, keyring (default: file)
  WEBOS_KEY_FILE            Key file or database path (default: ~/.aiopylgtv)
  WEBOS_CONNECT_TIMEOUT     Connect and ping timeout in seconds (default: 2)
  WEBOS_PING_INTERVAL       Keepalive interval in seconds, 0 disables (default: 20)
  WEBOS_STANDBY             Standby connection: true or false
  WEBOS_INPUT_RATE          Input frames per second, 0 is unlimited
  WEBOS_PAIRING_TIMEOUT     Seconds to wait for pairing confirmation (default: 60)
  WEBOS_LOG_LEVEL           Log level: debug, info, warn, error
  WEBOS_LISTEN              Bridge listen address (default: 127.0.0.1:8130)
  WEBOS_TOKEN_HASH          bcrypt hash of the bridge bearer token
  WEBOS_TOTP_SECRET         TOTP secret required for bridge commands
  WEBOS_RECONNECT_MAX       Maximum bridge reconnect backoff in seconds (default: 60)`,
		Version:       Version,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd.Context(), f, args[0], args[1], args[2:])
		},
	}
	// Command arguments such as "-2" must not be parsed as flags.
	cmd.Flags().SetInterspersed(false)

	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&f.keyStore, "key-store", "", "credential backend: file, sqlite, keyring")
	cmd.PersistentFlags().StringVar(&f.keyFile, "key-file", "", "key file or database path")
	cmd.PersistentFlags().IntVar(&f.port, "port", 0, "control socket port")
	cmd.PersistentFlags().BoolVar(&f.standby, "standby", false, "standby connection")

	cmd.AddCommand(pairCmd(f))
	cmd.AddCommand(serveCmd(f))
	cmd.AddCommand(commandsCmd())

	return cmd
}

func pairCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "pair <host>",
		Short: "Pair with a device and store its client key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			env, err := setup(ctx, f, args[0])
			if err != nil {
				return err
			}
			defer env.close()

			if err := env.client.Connect(ctx); err != nil {
				env.log.Error().Err(err).Msg("pairing failed")
				return err
			}
			defer env.disconnect()

			if !env.client.IsRegistered() {
				return fmt.Errorf("%w: device issued no client key", remote.ErrPairingFailed)
			}
			fmt.Printf("paired with %s (%s)\n", args[0], env.client.State().ModelName())
			return nil
		},
	}
}

func serveCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [host]",
		Short: "Run the HTTP and WebSocket bridge",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			host := ""
			if len(args) == 1 {
				host = args[0]
			}
			env, err := setup(ctx, f, host)
			if err != nil {
				return err
			}
			defer env.close()

			if err := env.cfg.ValidateBridge(); err != nil {
				env.log.Error().Err(err).Msg("invalid bridge configuration")
				return err
			}

			env.log.Info().
				Str("version", Version).
				Str("host", env.cfg.Host).
				Str("listen", env.cfg.Listen).
				Bool("auth", env.cfg.TokenHash != "").
				Msg("webos-remote bridge starting")

			srv := bridge.New(bridge.Config{
				ListenAddr:   env.cfg.Listen,
				TokenHash:    env.cfg.TokenHash,
				TOTPSecret:   env.cfg.TOTPSecret,
				ReconnectMax: env.cfg.ReconnectMax,
			}, env.client, env.log)
			return srv.Run(ctx)
		},
	}
}

func commandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List available commands",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			reg := commands.Default()
			for _, name := range reg.Names() {
				c := reg[name]
				fmt.Printf("  %-28s %-24s %s\n", name, c.Usage, c.Help)
			}
		},
	}
}

// runCommand connects, runs one command and prints its result.
func runCommand(parent context.Context, f *flags, host, name string, args []string) error {
	cmd, err := commands.Default().Lookup(name, args)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(parent)
	defer stop()

	env, err := setup(ctx, f, host)
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.client.Connect(ctx); err != nil {
		env.log.Error().Err(err).Msg("connect failed")
		return err
	}
	defer env.disconnect()

	result, err := cmd.Run(ctx, env.client, args)
	if err != nil {
		env.log.Error().Err(err).Str("command", name).Msg("command failed")
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// deviceEnv is everything a subcommand needs to talk to the device.
type deviceEnv struct {
	cfg    *config.Config
	log    zerolog.Logger
	store  credstore.Store
	client *remote.Client
}

func setup(ctx context.Context, f *flags, host string) (*deviceEnv, error) {
	// Set up logging
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().
		Timestamp().
		Logger()

	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return nil, err
	}
	if host != "" {
		cfg.Host = host
	}
	f.apply(cfg)
	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return nil, err
	}

	store, err := credstore.Open(cfg.KeyStore, cfg.KeyFile)
	if err != nil {
		log.Error().Err(err).Msg("failed to open key store")
		return nil, err
	}

	client, err := remote.New(ctx, cfg.Host, remote.Options{
		Port:           cfg.Port,
		ConnectTimeout: cfg.ConnectTimeout,
		PingInterval:   cfg.PingInterval,
		Standby:        cfg.Standby,
		PairingTimeout: cfg.PairingTimeout,
		InputRate:      cfg.InputRate,
		Store:          store,
		Log:            log,
	})
	if err != nil {
		closeStore(store)
		log.Error().Err(err).Msg("failed to create client")
		return nil, err
	}

	return &deviceEnv{cfg: cfg, log: log, store: store, client: client}, nil
}

func (f *flags) apply(cfg *config.Config) {
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.keyStore != "" {
		cfg.KeyStore = f.keyStore
	}
	if f.keyFile != "" {
		cfg.KeyFile = f.keyFile
	}
	if f.port != 0 {
		cfg.Port = f.port
	}
	if f.standby {
		cfg.Standby = true
	}
}

// disconnect ends the session within a grace period.
func (e *deviceEnv) disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	if err := e.client.Disconnect(ctx); err != nil {
		e.log.Warn().Err(err).Msg("disconnect did not finish")
	}
}

func (e *deviceEnv) close() {
	closeStore(e.store)
}

func closeStore(store credstore.Store) {
	if c, ok := store.(io.Closer); ok {
		_ = c.Close()
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
