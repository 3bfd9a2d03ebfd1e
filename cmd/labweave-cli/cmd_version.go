package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/labweave/labweave/client"
)

var versionHeaders = []string{"VERSION", "FILENAME", "SIZE", "HASH", "RESTORED_FROM", "COMMENT"}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Manage document versions",
	}
	cmd.AddCommand(versionAddCmd())
	cmd.AddCommand(versionListCmd())
	cmd.AddCommand(versionGetCmd())
	cmd.AddCommand(versionRestoreCmd())
	cmd.AddCommand(versionDownloadCmd())
	return cmd
}

func parseVersion(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		fatal("parse version", fmt.Errorf("%q is not a positive integer", s))
	}
	return n
}

func versionAddCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "add <document-id> <file>",
		Short: "Upload a new version",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			file, closeFile, err := openFile(args[1])
			if err != nil {
				fatal("open file", err)
			}
			defer closeFile()

			v, err := apiClient.Versions.Add(context.Background(), args[0], file, comment)
			if err != nil {
				fatal("add version", err)
			}
			output(v, strconv.Itoa(v.Number))
		},
	}
	cmd.Flags().StringVarP(&comment, "message", "m", "", "Version comment")
	return cmd
}

func versionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <document-id>",
		Short: "List a document's versions",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			versions, err := apiClient.Versions.List(context.Background(), args[0])
			if err != nil {
				fatal("list versions", err)
			}
			outputRows(map[string]any{"versions": versions}, versionHeaders, versionRows(versions))
		},
	}
}

func versionGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <document-id> <version>",
		Short: "Get one version",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			v, err := apiClient.Versions.Get(context.Background(), args[0], parseVersion(args[1]))
			if err != nil {
				fatal("get version", err)
			}
			output(v, v.ContentHash)
		},
	}
}

func versionRestoreCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "restore <document-id> <version>",
		Short: "Restore an old version as a new version",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			v, err := apiClient.Versions.Restore(context.Background(), args[0], parseVersion(args[1]), comment)
			if err != nil {
				fatal("restore version", err)
			}
			output(v, strconv.Itoa(v.Number))
		},
	}
	cmd.Flags().StringVarP(&comment, "message", "m", "", "Version comment")
	return cmd
}

func versionDownloadCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "download <document-id> <version>",
		Short: "Download one version's content",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			n := parseVersion(args[1])
			download(outPath, func(w io.Writer) (*client.ContentInfo, error) {
				return apiClient.Versions.Content(context.Background(), args[0], n, w)
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Write to file instead of stdout")
	return cmd
}
