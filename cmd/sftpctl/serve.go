package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oarkflow/sftp-transport/fs"
	"github.com/oarkflow/sftp-transport/sftptest"
	"github.com/oarkflow/sftp-transport/utils"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		listen   string
		root     string
		hostKey  string
		readOnly bool
		inMemory bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a local directory over SFTP",
		Long: `Serve a local directory over SFTP to the single account given by --user
and --password, until interrupted.

Handy to try the other commands, or a pipeline, without a real server.`,
		Example: `  sftpctl serve --user bob --password secret --root ./data --listen 127.0.0.1:2022
  sftpctl --host 127.0.0.1 --port 2022 --user bob --password secret --insecure ls /`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			serve := a.cfg.Serve
			flags := cmd.Flags()
			if flags.Changed("listen") {
				serve.Listen = listen
			}
			if flags.Changed("root") {
				serve.Access.BasePath = root
			}
			if flags.Changed("host-key") {
				serve.HostKey = hostKey
			}
			if flags.Changed("read-only") {
				serve.Access.ReadOnly = readOnly
			}
			if inMemory {
				serve.Access.Fs = fs.TypeMem
			}
			if serve.Access.Fs == fs.TypeOs {
				serve.Access.BasePath = utils.AbsPath(serve.Access.BasePath)
			}

			if a.cfg.User == "" || a.cfg.Password == "" {
				return errors.New("serve needs --user and --password")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServer(ctx, cmd, a, serve)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default 127.0.0.1:2022)")
	cmd.Flags().StringVar(&root, "root", "", "Directory to serve (default: the working directory)")
	cmd.Flags().StringVar(&hostKey, "host-key", "", "PEM host key file, generated when missing (default: a new key per run)")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Reject every write")
	cmd.Flags().BoolVar(&inMemory, "mem", false, "Serve an empty in-memory file system instead of a directory")
	return cmd
}

func runServer(ctx context.Context, cmd *cobra.Command, a *app, serve ServeConfig) error {
	filesystem, err := fs.LoadFs(serve.Access)
	if err != nil {
		return err
	}

	srv := sftptest.New(
		sftptest.WithFs(filesystem),
		sftptest.WithUser(a.cfg.User, a.cfg.Password),
		sftptest.WithAddress(serve.Listen),
		sftptest.WithHostKeyFile(serve.HostKey),
		sftptest.WithReadOnly(serve.Access.ReadOnly),
		sftptest.WithLogger(a.logger.With("component", "server")),
	)
	if err := srv.Start(); err != nil {
		return err
	}

	host, port := srv.Addr()
	fmt.Fprintf(cmd.OutOrStdout(), "serving %s on %s:%d\n", filesystem.Name(), host, port)

	<-ctx.Done()
	return srv.Close()
}
