package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/labweave/labweave/client"
)

var documentHeaders = []string{"ID", "TITLE", "VERSION", "PROJECT", "UPDATED"}

func newDocCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Manage documents",
	}
	cmd.AddCommand(docCreateCmd())
	cmd.AddCommand(docListCmd())
	cmd.AddCommand(docGetCmd())
	cmd.AddCommand(docUpdateCmd())
	cmd.AddCommand(docDeleteCmd())
	cmd.AddCommand(docLinkCmd())
	cmd.AddCommand(docDownloadCmd())
	return cmd
}

// openFile opens path for upload, using its base name as the filename.
func openFile(path string) (client.File, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return client.File{}, nil, err
	}
	return client.File{Name: filepath.Base(path), Content: f}, func() { f.Close() }, nil
}

func parseJSONObject(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func docCreateCmd() *cobra.Command {
	var req client.CreateDocumentRequest
	var metaJSON string
	cmd := &cobra.Command{
		Use:   "create <file>",
		Short: "Upload a file as a new document",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			meta, err := parseJSONObject(metaJSON)
			if err != nil {
				fatal("parse metadata", err)
			}
			req.Metadata = meta
			if req.Title == "" {
				req.Title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}

			file, closeFile, err := openFile(args[0])
			if err != nil {
				fatal("open file", err)
			}
			defer closeFile()

			res, err := apiClient.Documents.Create(context.Background(), &req, file)
			if err != nil {
				fatal("create document", err)
			}
			output(res, res.Document.ID)
		},
	}
	cmd.Flags().StringVar(&req.Title, "title", "", "Title (default: file name)")
	cmd.Flags().StringVar(&req.Description, "description", "", "Description")
	cmd.Flags().StringVar(&req.DocumentType, "type", "", "Document type, e.g. protocol")
	cmd.Flags().StringVar(&req.ProjectID, "project", "", "Project id")
	cmd.Flags().StringVar(&req.ExperimentID, "experiment", "", "Experiment id")
	cmd.Flags().StringSliceVar(&req.Tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().StringVar(&metaJSON, "metadata", "", "Metadata as a JSON object")
	return cmd
}

func docListCmd() *cobra.Command {
	var opts client.DocumentListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			docs, hasMore, err := apiClient.Documents.List(context.Background(), &opts)
			if err != nil {
				fatal("list documents", err)
			}
			outputRows(map[string]any{"documents": docs, "has_more": hasMore}, documentHeaders, documentRows(docs))
		},
	}
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "Filter by project id")
	cmd.Flags().StringVar(&opts.ExperimentID, "experiment", "", "Filter by experiment id")
	cmd.Flags().StringVar(&opts.DocumentType, "type", "", "Filter by document type")
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "Filter by tag")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "Max results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Offset")
	return cmd
}

func docGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a document",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			doc, err := apiClient.Documents.Get(context.Background(), args[0])
			if err != nil {
				fatal("get document", err)
			}
			output(doc, doc.ID)
		},
	}
}

func docUpdateCmd() *cobra.Command {
	var title, description, docType, metaJSON string
	var tags []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update document metadata",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			req := &client.UpdateDocumentRequest{Tags: tags}
			if cmd.Flags().Changed("title") {
				req.Title = &title
			}
			if cmd.Flags().Changed("description") {
				req.Description = &description
			}
			if cmd.Flags().Changed("type") {
				req.DocumentType = &docType
			}
			meta, err := parseJSONObject(metaJSON)
			if err != nil {
				fatal("parse metadata", err)
			}
			req.Metadata = meta

			doc, err := apiClient.Documents.Update(context.Background(), args[0], req)
			if err != nil {
				fatal("update document", err)
			}
			output(doc, doc.ID)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&docType, "type", "", "New document type")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Replace tags (repeatable)")
	cmd.Flags().StringVar(&metaJSON, "metadata", "", "Replace metadata with a JSON object")
	return cmd
}

func docDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document and its history",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := apiClient.Documents.Delete(context.Background(), args[0]); err != nil {
				fatal("delete document", err)
			}
			output(map[string]any{"deleted": true, "id": args[0]}, args[0])
		},
	}
}

func docLinkCmd() *cobra.Command {
	var relation, propsJSON string
	cmd := &cobra.Command{
		Use:   "link <id> <target-type> <target-id>",
		Short: "Link a document to a project, experiment, sample, user or document",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			props, err := parseJSONObject(propsJSON)
			if err != nil {
				fatal("parse props", err)
			}
			req := &client.LinkRequest{TargetType: args[1], TargetID: args[2], Relation: relation, Properties: props}
			if err := apiClient.Documents.Link(context.Background(), args[0], req); err != nil {
				fatal("link document", err)
			}
			output(map[string]any{"linked": true}, args[0])
		},
	}
	cmd.Flags().StringVar(&relation, "relation", "RELATED_TO", "Relation type")
	cmd.Flags().StringVar(&propsJSON, "props", "", "Edge properties as JSON")
	return cmd
}

func docDownloadCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download the current version's content",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			download(outPath, func(w io.Writer) (*client.ContentInfo, error) {
				return apiClient.Documents.Content(context.Background(), args[0], w)
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

// download writes content to outPath, or stdout when empty.
func download(outPath string, fetch func(io.Writer) (*client.ContentInfo, error)) {
	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			fatal("create output", err)
		}
		defer f.Close()
		w = f
	}

	info, err := fetch(w)
	if err != nil {
		fatal("download", err)
	}
	if outPath != "" {
		fmt.Fprintf(os.Stderr, "wrote %d bytes (sha256 %s) to %s\n", info.Size, info.ContentHash, outPath)
	}
}
