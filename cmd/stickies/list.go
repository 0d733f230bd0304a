package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/stickies/pkg/core"
)

var listOutput string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the notes of the current session",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := openApp(ctx)
		notes := app.Store().Notes()
		closeApp(ctx, app)

		if err := printNotes(notes, listOutput); err != nil {
			fatal("Failed to print notes", err)
		}
	},
}

func printNotes(notes []core.Note, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(notes)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(notes)
	case "", "table":
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCOLOR\tPOSITION\tHEIGHT\tCONTENT")
		for _, n := range notes {
			fmt.Fprintf(w, "%d\t%s\t%.0f,%.0f\t%.0f\t%s\n",
				n.ID, n.Color, n.PositionX, n.PositionY, n.Height, preview(n.Content, 40))
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func preview(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

func printNote(n core.Note) {
	if err := printNotes([]core.Note{n}, listOutput); err != nil {
		fatal("Failed to print note", err)
	}
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.PersistentFlags().StringVarP(&listOutput, "output", "o", "table", "Output format (table, json, yaml)")
}
