package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aretw0/stickies/pkg/core"
)

var (
	addColor     string
	addTextColor string
)

func parseID(arg string) int64 {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fatal("Invalid note id", err)
	}
	return id
}

func parseFloat(name, arg string) float64 {
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		fatal("Invalid "+name, err)
	}
	return v
}

// lookup reports an error when id is not in the current session.
func lookup(store *core.Store, id int64) error {
	if _, ok := store.Get(id); !ok {
		return fmt.Errorf("note %d: %w", id, core.ErrNotFound)
	}
	return nil
}

var addCmd = &cobra.Command{
	Use:   "add [content]",
	Short: "Create a note",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		content := ""
		if len(args) == 1 {
			content = args[0]
		}
		ctx := context.Background()
		app := openApp(ctx)
		n, err := app.Store().AddNote(ctx, content, addColor, addTextColor)
		closeApp(ctx, app)
		if err != nil {
			fatal("Failed to add note", err)
		}
		printNote(n)
	},
}

// fieldCmd builds a command that edits one coalesced field and relies on
// Close to flush the write.
func fieldCmd(use, short string, nargs int, apply func(*core.Store, int64, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		Run: func(cmd *cobra.Command, args []string) {
			id := parseID(args[0])
			ctx := context.Background()
			app := openApp(ctx)
			store := app.Store()
			if err := lookup(store, id); err != nil {
				failApp(ctx, app, "Note not found", err)
			}
			if err := apply(store, id, args[1:]); err != nil {
				failApp(ctx, app, "Failed to update note", err)
			}
			n, _ := store.Get(id)
			closeApp(ctx, app)
			printNote(n)
		},
	}
}

var editCmd = fieldCmd("edit <id> <content>", "Replace the content of a note", 2,
	func(s *core.Store, id int64, args []string) error {
		return s.EditContent(id, args[0])
	})

var moveCmd = fieldCmd("move <id> <x> <y>", "Move a note on the board", 3,
	func(s *core.Store, id int64, args []string) error {
		return s.UpdatePosition(id, parseFloat("x", args[0]), parseFloat("y", args[1]))
	})

var resizeCmd = fieldCmd("resize <id> <height>", "Set the expanded height of a note", 2,
	func(s *core.Store, id int64, args []string) error {
		return s.UpdateHeight(id, parseFloat("height", args[0]))
	})

// commitCmd builds a command for operations that persist immediately.
func commitCmd(use, short string, op func(*core.Store, context.Context, int64) (core.Note, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id := parseID(args[0])
			ctx := context.Background()
			app := openApp(ctx)
			n, err := op(app.Store(), ctx, id)
			if err != nil {
				failApp(ctx, app, "Failed to update note", err)
			}
			closeApp(ctx, app)
			printNote(n)
		},
	}
}

var colorCmd = commitCmd("color <id>", "Give a note a random background color", (*core.Store).ChangeColor)

var textColorCmd = commitCmd("text-color <id>", "Give a note a random text color", (*core.Store).ChangeTextColor)

var expandCmd = commitCmd("expand <id>", "Toggle the expanded state of a note", (*core.Store).ToggleExpand)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		ctx := context.Background()
		app := openApp(ctx)
		if err := app.Store().DeleteNote(ctx, id); err != nil {
			failApp(ctx, app, "Failed to delete note", err)
		}
		closeApp(ctx, app)
		fmt.Printf("Note %d deleted.\n", id)
	},
}

func init() {
	addCmd.Flags().StringVar(&addColor, "color", "", "Background color (#rrggbb)")
	addCmd.Flags().StringVar(&addTextColor, "text-color", "", "Text color (#rrggbb)")
	rootCmd.AddCommand(addCmd, editCmd, moveCmd, resizeCmd, colorCmd, textColorCmd, expandCmd, deleteCmd)
}
