package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/labweave/labweave/client"
)

var nodeHeaders = []string{"ID", "TYPE", "LABEL"}

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Query the knowledge graph",
	}
	cmd.AddCommand(graphNodeCmd())
	cmd.AddCommand(graphNeighborsCmd())
	cmd.AddCommand(graphPathCmd())
	cmd.AddCommand(graphRelatedCmd())
	cmd.AddCommand(graphSearchCmd())
	return cmd
}

func graphNodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "node <node-id>",
		Short: "Get a node, e.g. document:<id> or user:alice",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			n, err := apiClient.Graph.GetNode(context.Background(), args[0])
			if err != nil {
				fatal("get node", err)
			}
			output(n, n.ID)
		},
	}
}

func graphNeighborsCmd() *cobra.Command {
	var opts client.NeighborOptions
	cmd := &cobra.Command{
		Use:   "neighbors <node-id>",
		Short: "List directly connected nodes",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			res, err := apiClient.Graph.Neighbors(context.Background(), args[0], &opts)
			if err != nil {
				fatal("neighbors", err)
			}
			outputRows(res, nodeHeaders, nodeRows(res.Nodes))
		},
	}
	cmd.Flags().StringVar(&opts.Direction, "direction", "both", "in|out|both")
	cmd.Flags().StringVar(&opts.Relation, "relation", "", "Only edges with this relation")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Max neighbors")
	return cmd
}

func graphPathCmd() *cobra.Command {
	var maxDepth int
	cmd := &cobra.Command{
		Use:   "path <from-id> <to-id>",
		Short: "Find the shortest path between two nodes",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			p, err := apiClient.Graph.Path(context.Background(), args[0], args[1], maxDepth)
			if err != nil {
				fatal("path", err)
			}
			if flagFmt == "json" {
				formatJSON(p)
				return
			}
			ids := make([]string, len(p.Nodes))
			for i, n := range p.Nodes {
				ids[i] = n.ID
			}
			fmt.Println(strings.Join(ids, " -> "))
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Max path length (server default when 0)")
	return cmd
}

func graphRelatedCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "related <node-id>",
		Short: "List everything within a few hops",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			res, err := apiClient.Graph.Related(context.Background(), args[0], depth)
			if err != nil {
				fatal("related", err)
			}
			outputRows(res, nodeHeaders, nodeRows(res.Nodes))
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 2, "Hops to expand")
	return cmd
}

func graphSearchCmd() *cobra.Command {
	var opts client.SearchOptions
	var props []string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search nodes by label and properties",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			parsed, err := parseProps(props)
			if err != nil {
				fatal("parse --prop", err)
			}
			opts.Properties = parsed

			hits, err := apiClient.Graph.Search(context.Background(), args[0], &opts)
			if err != nil {
				fatal("search", err)
			}
			nodes := make([]client.Node, len(hits))
			for i, h := range hits {
				nodes[i] = h.Node
			}
			outputRows(map[string]any{"results": hits, "total": len(hits)}, nodeHeaders, nodeRows(nodes))
		},
	}
	cmd.Flags().StringSliceVar(&opts.Types, "type", nil, "Node type (repeatable)")
	cmd.Flags().StringArrayVar(&props, "prop", nil, "Property filter key=value (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Max results")
	return cmd
}

// parseProps turns key=value pairs into a filter map.
func parseProps(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%q: want key=value", p)
		}
		out[k] = v
	}
	return out, nil
}
