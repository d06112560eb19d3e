package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/clustergate/clustergate/cfg"
	"github.com/clustergate/clustergate/deploy"
	"github.com/clustergate/clustergate/session"
	"github.com/clustergate/clustergate/telemetry"
	"github.com/clustergate/clustergate/topology"
)

type rootFlags struct {
	configPath string
}

type connectFlags struct {
	user     string
	password string
	socket   string
}

func main() {
	root := &rootFlags{}

	app := &cobra.Command{
		Use:          "clustergate",
		Short:        "Topology resolver and bootstrap tool for group-replicated MySQL clusters",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(root.configPath); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			setupLogging()
			return nil
		},
	}
	app.PersistentFlags().StringVar(&root.configPath, "config", "clustergate.toml", "Path to configuration file")

	app.AddCommand(bootstrapCommand())
	app.AddCommand(monitorCommand())

	if err := app.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging() {
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}
}

func connect(target string, conn connectFlags) (session.Session, error) {
	params, err := deploy.ParseTarget(target, conn.socket)
	if err != nil {
		return nil, err
	}
	if conn.user != "" {
		params.User = conn.user
	}
	if conn.password != "" {
		params.Password = conn.password
	}
	if params.Password == "" {
		params.Password = os.Getenv("CLUSTERGATE_PASSWORD")
	}
	params.ConnectTimeout = time.Duration(cfg.Config.Connection.ConnectTimeoutSeconds) * time.Second
	return session.Connect(params)
}

// applyBootstrapFlags copies flags the user actually set into opts, under
// the bootstrap option names.
func applyBootstrapFlags(flags *pflag.FlagSet, names map[string]string, opts *cfg.BootstrapOptions) error {
	for flagName, optName := range names {
		f := flags.Lookup(flagName)
		if f == nil || !f.Changed {
			continue
		}
		if err := opts.Set(optName, f.Value.String()); err != nil {
			return err
		}
	}
	return nil
}

func bootstrapCommand() *cobra.Command {
	conn := connectFlags{}
	var accountHosts []string

	// flag name -> bootstrap option name, for options passed through
	// verbatim
	passthrough := map[string]string{
		"name":                      "name",
		"base-port":                 "base-port",
		"bind-address":              "bind-address",
		"use-sockets":               "use-sockets",
		"skip-tcp":                  "skip-tcp",
		"socketsdir":                "socketsdir",
		"password-retries":          "password-retries",
		"force":                     "force",
		"force-password-validation": "force-password-validation",
		"ssl-mode":                  "ssl_mode",
		"ssl-ca":                    "ssl_ca",
		"ssl-capath":                "ssl_capath",
		"ssl-crl":                   "ssl_crl",
		"ssl-crlpath":               "ssl_crlpath",
		"ssl-cipher":                "ssl_cipher",
		"tls-version":               "tls_version",
		"ssl-cert":                  "ssl_cert",
		"ssl-key":                   "ssl_key",
		"conf-user":                 "user",
	}

	cmd := &cobra.Command{
		Use:   "bootstrap <target> <directory>",
		Short: "Provision a router account and write a deployment directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cfg.NewBootstrapOptions()
			if err := applyBootstrapFlags(cmd.Flags(), passthrough, &opts); err != nil {
				return err
			}
			opts.AccountHosts = accountHosts
			if err := opts.ValidateEarly(); err != nil {
				return err
			}

			sess, err := connect(args[0], conn)
			if err != nil {
				return err
			}
			defer sess.Close()

			mgr := &deploy.Manager{Sess: sess}
			rep, err := mgr.Bootstrap(args[1], opts)
			if err != nil {
				return err
			}
			fmt.Printf("Bootstrap complete.\n")
			fmt.Printf("  router id:  %d\n", rep.RouterID)
			fmt.Printf("  account:    %s\n", rep.AccountUser)
			fmt.Printf("  config:     %s\n", rep.ConfigPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&conn.user, "user", "u", "root", "Account to connect to the cluster with")
	cmd.Flags().StringVarP(&conn.password, "password", "p", "", "Password for the connecting account")
	cmd.Flags().StringVar(&conn.socket, "bootstrap-socket", "", "Unix socket to the bootstrap server (localhost only)")
	cmd.Flags().StringArrayVar(&accountHosts, "account-host", nil, "Host pattern for the created account (repeatable)")

	cmd.Flags().String("name", "", "Name for this router instance")
	cmd.Flags().String("base-port", "", "Base port for the four listening endpoints")
	cmd.Flags().String("bind-address", "", "Address the endpoints bind to")
	cmd.Flags().String("use-sockets", "", "Also listen on unix sockets (1 to enable)")
	cmd.Flags().String("skip-tcp", "", "Do not open TCP endpoints (1 to enable)")
	cmd.Flags().String("socketsdir", "", "Directory for the unix socket files")
	cmd.Flags().String("password-retries", "", "Attempts at generating a policy-compliant account password")
	cmd.Flags().String("force", "", "Replace a configuration for a different cluster (1 to enable)")
	cmd.Flags().String("force-password-validation", "", "Never bypass the server password policy (1 to enable)")
	cmd.Flags().String("ssl-mode", "", "SSL mode for metadata connections")
	cmd.Flags().String("ssl-ca", "", "Path to the CA certificate file")
	cmd.Flags().String("ssl-capath", "", "Path to the CA certificate directory")
	cmd.Flags().String("ssl-crl", "", "Path to the certificate revocation list file")
	cmd.Flags().String("ssl-crlpath", "", "Path to the certificate revocation list directory")
	cmd.Flags().String("ssl-cipher", "", "Allowed SSL ciphers")
	cmd.Flags().String("tls-version", "", "Allowed TLS versions")
	cmd.Flags().String("ssl-cert", "", "Path to the client certificate")
	cmd.Flags().String("ssl-key", "", "Path to the client key")
	cmd.Flags().String("conf-user", "", "OS user the router runs as, recorded in the configuration")

	return cmd
}

func monitorCommand() *cobra.Command {
	conn := connectFlags{}

	cmd := &cobra.Command{
		Use:   "monitor <target>",
		Short: "Poll cluster topology and expose it over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Config.Metrics.Enabled {
				telemetry.InitializeTelemetry()
				telemetry.InitMetrics()
			}

			sess, err := connect(args[0], conn)
			if err != nil {
				return err
			}
			defer sess.Close()

			interval := time.Duration(cfg.Config.Cache.RefreshIntervalSeconds) * time.Second
			cache := topology.NewCache(sess, interval)
			if err := cache.Refresh(); err != nil {
				return err
			}
			cache.Start()
			defer cache.Stop()

			mux := http.NewServeMux()
			mux.HandleFunc("/members", topology.NewHandler(cache).HandleMembers)
			if h := telemetry.GetMetricsHandler(); h != nil {
				mux.Handle("/metrics", h)
			}

			addr := fmt.Sprintf("%s:%d", cfg.Config.Metrics.Address, cfg.Config.Metrics.Port)
			srv := &http.Server{Addr: addr, Handler: mux}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("HTTP server failed")
				}
			}()
			log.Info().Str("addr", addr).Msg("Topology monitor started")

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop
			log.Info().Msg("Shutting down")
			return srv.Close()
		},
	}

	cmd.Flags().StringVarP(&conn.user, "user", "u", "", "Account to connect to the cluster with")
	cmd.Flags().StringVarP(&conn.password, "password", "p", "", "Password for the connecting account")
	cmd.Flags().StringVar(&conn.socket, "bootstrap-socket", "", "Unix socket to the cluster member (localhost only)")
	return cmd
}
