package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rmax-ai/readgraph/pkg/client"
	"github.com/rmax-ai/readgraph/pkg/mcp"
	"github.com/rmax-ai/readgraph/pkg/viewer"
	"github.com/spf13/cobra"
)

type cli struct {
	endpoint string
}

func (c *cli) client() *client.Client {
	return client.NewClient(c.endpoint)
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "readgraph",
		Short:         "Command line access to a running readgraphd",
		Version:       Version + " (" + Commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultEndpoint := os.Getenv("READGRAPH_ENDPOINT")
	if defaultEndpoint == "" {
		defaultEndpoint = client.DefaultEndpoint
	}
	root.PersistentFlags().StringVar(&c.endpoint, "endpoint", defaultEndpoint, "readgraphd base URL")

	root.AddCommand(
		c.openCmd(),
		c.exportCmd(),
		c.importCmd(),
		c.reportCmd(),
		c.suggestCmd(),
		c.mcpCmd(),
	)
	return root
}

func (c *cli) openCmd() *cobra.Command {
	var layout viewer.Metrics
	cmd := &cobra.Command{
		Use:   "open <owner> <document>",
		Short: "Open a document in the daemon's workspace",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := c.client().OpenDocument(cmd.Context(), client.OpenRequest{
				OwnerID: args[0], DocumentID: args[1], Layout: layout,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Opened %s for %s (session %s)\n", doc.DocumentID, doc.OwnerID, doc.SessionState)
			return nil
		},
	}
	cmd.Flags().Float64Var(&layout.PageHeight, "page-height", 0, "rendered page height in pixels")
	cmd.Flags().IntVar(&layout.PageCount, "page-count", 0, "number of pages")
	return cmd
}

func (c *cli) exportCmd() *cobra.Command {
	var (
		out        string
		noDocument bool
		store      bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the open document's annotations as a zip archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api := c.client()
			if store {
				res, err := api.ExportArchive(cmd.Context(), !noDocument)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", res.Key)
				return nil
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			if err := api.DownloadArchive(cmd.Context(), w, !noDocument); err != nil {
				return err
			}
			if out != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", out)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the archive to this file instead of stdout")
	cmd.Flags().BoolVar(&noDocument, "no-document", false, "leave the document binary out of the archive")
	cmd.Flags().BoolVar(&store, "store", false, "keep the archive in the daemon's blob store")
	return cmd
}

func (c *cli) importCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "import <archive.zip>...",
		Short: "Merge other readers' archives into the open document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := make([]client.ArchiveFile, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				files = append(files, client.ArchiveFile{Name: filepath.Base(path), Data: data})
			}

			res, err := c.client().ImportArchives(cmd.Context(), files...)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			for _, s := range res.Stats {
				fmt.Fprintf(w, "%s (%s): %d highlights, %d nodes, %d edges, %d purposes\n",
					s.Name, s.OwnerID, s.Highlights, s.Nodes, s.Edges, s.Purposes)
			}
			for _, f := range res.Failed {
				fmt.Fprintf(w, "%s: FAILED %s\n", f.Name, f.Error)
			}
			fmt.Fprintf(w, "Merged %d highlights, %d nodes, %d edges, %d purposes (%d skipped)\n",
				res.Merged.Highlights, res.Merged.Nodes, res.Merged.Edges, res.Merged.Purposes, res.Merged.Skipped)
			if res.DocumentStored {
				fmt.Fprintf(w, "Document restored from %s\n", res.DocumentSource)
			}
			for _, warning := range res.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warning)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw import result")
	return cmd
}

func (c *cli) reportCmd() *cobra.Command {
	var (
		opts      client.ReportOptions
		documents string
		users     string
		out       string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a reading analytics report",
		Long: `Render one drill-down level as CSV or JSON.

Types: documents, users (needs --document), purposes (needs --document and --owner), timeline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Selection.DocumentIDs = splitList(documents)
			opts.Selection.UserIDs = splitList(users)
			data, err := c.client().Report(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(out, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&opts.Type, "type", "t", "documents", "report type")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "csv", "csv or json")
	cmd.Flags().StringVar(&opts.DocumentID, "document", "", "document for users/purposes reports")
	cmd.Flags().StringVar(&opts.OwnerID, "owner", "", "owner for purposes reports")
	cmd.Flags().StringVar(&documents, "documents", "", "comma separated document filter")
	cmd.Flags().StringVar(&users, "users", "", "comma separated user filter")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}

func (c *cli) suggestCmd() *cobra.Command {
	var (
		prompt  string
		refresh bool
	)
	cmd := &cobra.Command{
		Use:   "suggest <text-file>",
		Short: "Ask for reading goals for the open document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			s, err := c.client().Suggest(cmd.Context(), client.SuggestRequest{Prompt: prompt, Text: string(text)}, refresh)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, s.ReadingProgress)
			for i, g := range s.ReadingGoals {
				fmt.Fprintf(w, "%d. %s\n   %s\n", i+1, g.GoalName, g.GoalDescription)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt override")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore a cached suggestion")
	return cmd
}

func (c *cli) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the Model Context Protocol on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcp.NewServer(c.endpoint).Serve()
		},
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
