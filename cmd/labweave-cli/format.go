package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/labweave/labweave/client"
)

func formatJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: encode json: %v\n", err)
		os.Exit(1)
	}
}

func formatTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	printRow(headers)
	seps := make([]string, len(headers))
	for i, wd := range widths {
		seps[i] = strings.Repeat("-", wd)
	}
	printRow(seps)
	for _, row := range rows {
		printRow(row)
	}
}

// output prints v as JSON, or only quietVal in quiet mode.
func output(v any, quietVal string) {
	if flagFmt == "quiet" {
		fmt.Println(quietVal)
		return
	}
	formatJSON(v)
}

// outputRows prints v as JSON, a table of rows, or the first column in quiet mode.
func outputRows(v any, headers []string, rows [][]string) {
	switch flagFmt {
	case "table":
		formatTable(os.Stdout, headers, rows)
	case "quiet":
		for _, r := range rows {
			fmt.Println(r[0])
		}
	default:
		formatJSON(v)
	}
}

func documentRows(docs []client.Document) [][]string {
	rows := make([][]string, len(docs))
	for i, d := range docs {
		rows[i] = []string{d.ID, d.Title, strconv.Itoa(d.CurrentVersion), d.ProjectID, d.UpdatedAt.Format("2006-01-02 15:04")}
	}
	return rows
}

func versionRows(versions []client.Version) [][]string {
	rows := make([][]string, len(versions))
	for i, v := range versions {
		restored := ""
		if v.RestoredFrom != nil {
			restored = strconv.Itoa(*v.RestoredFrom)
		}
		rows[i] = []string{strconv.Itoa(v.Number), v.Filename, strconv.FormatInt(v.Size, 10), shortHash(v.ContentHash), restored, v.Comment}
	}
	return rows
}

func nodeRows(nodes []client.Node) [][]string {
	rows := make([][]string, len(nodes))
	for i, n := range nodes {
		rows[i] = []string{n.ID, n.Type, n.Label}
	}
	return rows
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
