package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	sftptransport "github.com/oarkflow/sftp-transport"
	"github.com/oarkflow/sftp-transport/log"
)

var (
	// BuildVersion is the current version of the program
	BuildVersion = ""

	// BuildDate is the time the program was built
	BuildDate = ""

	// Commit is the git hash of the program
	Commit = ""
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	confFile   string
	host       string
	port       int
	user       string
	password   string
	keyFile    string
	knownHosts string
	insecure   bool
	timeout    time.Duration
	logLevel   string
	logBackend string
}

// app carries what every command needs once the configuration is loaded.
type app struct {
	flags  globalFlags
	cfg    *Config
	logger log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "sftpctl",
		Short: "Move files to and from an SFTP server",
		Long: `sftpctl drives the SFTP transport from the command line.

Connection settings come from, in increasing priority, the configuration file
given with --conf, SFTP_* environment variables (a .env file in the working
directory is loaded first) and the flags below.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.flags.confFile, "conf", "", "Configuration file (YAML or JSON)")
	pf.StringVar(&a.flags.host, "host", "", "SFTP server host")
	pf.IntVar(&a.flags.port, "port", 0, "SFTP server port (default 22)")
	pf.StringVar(&a.flags.user, "user", "", "User name")
	pf.StringVar(&a.flags.password, "password", "", "Password")
	pf.StringVar(&a.flags.keyFile, "key-file", "", "PEM private key file")
	pf.StringVar(&a.flags.knownHosts, "known-hosts", "", "known_hosts file used to verify the server")
	pf.BoolVar(&a.flags.insecure, "insecure", false, "Do not verify the server host key")
	pf.DurationVar(&a.flags.timeout, "timeout", 0, "Connection timeout (default 30s)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "Log level: debug, info, warn, error (default warn)")
	pf.StringVar(&a.flags.logBackend, "log-backend", "", "Log backend: zap, logrus, nop (default zap)")

	cmd.AddCommand(
		newLsCmd(a),
		newExistsCmd(a),
		newGetCmd(a),
		newPutCmd(a),
		newCatCmd(a),
		newRmCmd(a),
		newMvCmd(a),
		newMkdirCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// load reads the configuration and lays the flags that were set on top of it.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := LoadConfig(a.flags.confFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = a.flags.host
	}
	if flags.Changed("port") {
		cfg.Port = a.flags.port
	}
	if flags.Changed("user") {
		cfg.User = a.flags.user
	}
	if flags.Changed("password") {
		cfg.Password = a.flags.password
	}
	if flags.Changed("key-file") {
		cfg.KeyFile = a.flags.keyFile
	}
	if flags.Changed("known-hosts") {
		cfg.KnownHosts = a.flags.knownHosts
	}
	if flags.Changed("insecure") {
		cfg.Insecure = a.flags.insecure
	}
	if flags.Changed("timeout") {
		cfg.Timeout = a.flags.timeout
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.flags.logLevel
	}
	if flags.Changed("log-backend") {
		cfg.LogBackend = a.flags.logBackend
	}

	logger, err := cfg.Logger()
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger.With("component", "sftpctl")
	return nil
}

// transport builds a transport acting on filePath.
func (a *app) transport(filePath string) (*sftptransport.Transport, error) {
	settings, err := a.cfg.Settings()
	if err != nil {
		return nil, err
	}
	return sftptransport.New(
		sftptransport.WithHostname(settings.Host),
		sftptransport.WithPort(settings.Port),
		sftptransport.WithUsername(settings.Username),
		sftptransport.WithPassword(settings.Password),
		sftptransport.WithPrivateKey(settings.PrivateKey, settings.Passphrase),
		sftptransport.WithKnownHostsFile(settings.KnownHostsFile),
		sftptransport.WithInsecureIgnoreHostKey(settings.InsecureIgnoreHostKey),
		sftptransport.WithTimeout(settings.Timeout),
		sftptransport.WithLogger(a.logger),
		sftptransport.WithFilePath(filePath),
	), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sftpctl version %s\n", BuildVersion)
			fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\n", Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "date: %s\n", BuildDate)
		},
	}
}
