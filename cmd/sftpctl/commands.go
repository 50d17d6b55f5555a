package main

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"

	sftptransport "github.com/oarkflow/sftp-transport"
	"github.com/oarkflow/sftp-transport/utils"
)

func newLsCmd(a *app) *cobra.Command {
	var match string
	var extensions []string

	cmd := &cobra.Command{
		Use:   "ls [directory]",
		Short: "List a remote directory as JSON",
		Long: `List a remote directory as JSON.

Without --ext the full paths of every entry are printed oldest first, optionally
kept only when --match, a regular expression, matches the whole path.
With --ext only the names of regular files containing one of the extensions are
printed, in listing order.`,
		Example: `  sftpctl ls /outbox --match '.*\.csv'
  sftpctl ls /outbox --ext .csv --ext .txt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			directory := sftptransport.DefaultDirectory
			if len(args) == 1 {
				directory = args[0]
			}

			t, err := a.transport("")
			if err != nil {
				return err
			}

			out, err := sjson.Set("", "directory", directory)
			if err != nil {
				return err
			}

			if len(extensions) > 0 {
				names, err := t.DirectoryFiles(directory, extensions...)
				if err != nil {
					return err
				}
				out, err = sjson.Set(out, "files", names)
				if err != nil {
					return err
				}
			} else {
				paths, err := t.ListFiles(directory, match)
				if err != nil {
					return err
				}
				out, err = sjson.Set(out, "paths", paths)
				if err != nil {
					return err
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&match, "match", "", "Regular expression the whole path must match")
	cmd.Flags().StringArrayVar(&extensions, "ext", nil, "Keep regular files whose name contains this extension (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("match", "ext")
	return cmd
}

func newExistsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <path>",
		Short: "Tell whether a remote path exists, as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.transport("")
			if err != nil {
				return err
			}

			exists, err := t.FileExists(args[0])
			if err != nil {
				return err
			}

			out, err := sjson.Set("", "path", args[0])
			if err != nil {
				return err
			}
			out, err = sjson.Set(out, "exists", exists)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newProgressBar(cmd *cobra.Command, size int64, description string, quiet bool) *progressbar.ProgressBar {
	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetVisibility(!quiet),
	)
}

func newGetCmd(a *app) *cobra.Command {
	var output string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "get <remote-file>",
		Short: "Download a remote file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote := args[0]
			local := output
			if local == "" {
				local = path.Base(remote)
			}

			t, err := a.transport(remote)
			if err != nil {
				return err
			}

			file, err := os.Create(local)
			if err != nil {
				return err
			}

			bar := newProgressBar(cmd, -1, "downloading", quiet)
			downloadErr := t.DownloadTo(io.MultiWriter(file, bar))
			closeErr := file.Close()
			bar.Finish()
			if downloadErr == nil {
				downloadErr = closeErr
			}
			if downloadErr != nil {
				os.Remove(local)
				return downloadErr
			}

			fi, err := os.Stat(local)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s)\n", remote, local, humanize.Bytes(uint64(fi.Size())))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Local file (default: the remote base name)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide the progress bar")
	return cmd
}

func newPutCmd(a *app) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "put <local-file> <remote-directory>",
		Short: "Upload a local file, keeping its name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local, directory := args[0], args[1]

			file, err := os.Open(local)
			if err != nil {
				return err
			}
			defer file.Close()

			fi, err := file.Stat()
			if err != nil {
				return err
			}

			t, err := a.transport("")
			if err != nil {
				return err
			}

			name := filepath.Base(local)
			bar := newProgressBar(cmd, fi.Size(), "uploading", quiet)
			reader := progressbar.NewReader(file, bar)
			if err := t.SendTo(directory, name, &reader); err != nil {
				return err
			}
			bar.Finish()

			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s)\n", local, utils.JoinRemote(directory, name), humanize.Bytes(uint64(fi.Size())))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide the progress bar")
	return cmd
}

func newCatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <remote-file>",
		Short: "Print a remote file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.transport(args[0])
			if err != nil {
				return err
			}
			return t.DownloadTo(cmd.OutOrStdout())
		},
	}
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <remote-file>",
		Short: "Delete a remote file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.transport(args[0])
			if err != nil {
				return err
			}
			return t.DeleteFile()
		},
	}
}

func newMvCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <remote-file> <new-path>",
		Short: "Rename a remote file, never replacing an existing one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.transport(args[0])
			if err != nil {
				return err
			}
			return t.RenameFile(args[1])
		},
	}
}

func newMkdirCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <remote-directory>",
		Short: "Create a remote directory unless it exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.transport("")
			if err != nil {
				return err
			}
			return t.EnsureDirectory(args[0])
		},
	}
}
