package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	authEmail    string
	authUsername string
)

// readPassword prompts on the terminal without echo, or reads a line from a pipe.
func readPassword(prompt string) string {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, prompt)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			fatal("Failed to read password", err)
		}
		return string(raw)
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		fatal("Failed to read password", err)
	}
	return strings.TrimRight(line, "\r\n")
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and switch to the notes of your account",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		password := readPassword("Password: ")
		ctx := context.Background()
		app := openApp(ctx)
		defer closeApp(ctx, app)

		s, err := app.Login(ctx, authEmail, password)
		if err != nil {
			failApp(ctx, app, "Login failed", err)
		}
		fmt.Printf("Logged in as %s. %d notes on your account.\n", s.Claims.Username, app.Store().Len())
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and switch back to the local notes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := openApp(ctx)
		defer closeApp(ctx, app)

		if !app.Session().LoggedIn() {
			fmt.Println("Not logged in.")
			return
		}
		if err := app.Logout(ctx); err != nil {
			failApp(ctx, app, "Logout failed", err)
		}
		fmt.Println("Logged out.")
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed in user",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := openApp(ctx)
		defer closeApp(ctx, app)

		s := app.Session().Current()
		if s == nil {
			fmt.Println("Not logged in. Notes are stored locally.")
			return
		}
		fmt.Printf("%s <%s>\n", s.Claims.Username, s.Claims.Email)
		if !s.Claims.ExpiresAt.IsZero() {
			fmt.Printf("Access token expires %s\n", s.Claims.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
		}
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		password := readPassword("Password: ")
		ctx := context.Background()
		app := openApp(ctx)
		defer closeApp(ctx, app)

		u, err := app.Register(ctx, authEmail, authUsername, password)
		if err != nil {
			failApp(ctx, app, "Registration failed", err)
		}
		fmt.Printf("Account %s created. Run 'stickies login --email %s' to sign in.\n", u.Username, u.Email)
	},
}

var passwordResetCmd = &cobra.Command{
	Use:   "password-reset",
	Short: "Request a password reset link",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := openApp(ctx)
		defer closeApp(ctx, app)

		detail, err := app.RequestPasswordReset(ctx, authEmail)
		if err != nil {
			failApp(ctx, app, "Password reset failed", err)
		}
		fmt.Println(detail)
	},
}

var passwordResetConfirmCmd = &cobra.Command{
	Use:   "password-reset-confirm <user-id> <token>",
	Short: "Set a new password from a reset link",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fatal("Invalid user id", err)
		}
		password := readPassword("New password: ")
		ctx := context.Background()
		app := openApp(ctx)
		defer closeApp(ctx, app)

		detail, err := app.ConfirmPasswordReset(ctx, userID, args[1], password)
		if err != nil {
			failApp(ctx, app, "Password reset failed", err)
		}
		fmt.Println(detail)
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd, passwordResetCmd} {
		c.Flags().StringVar(&authEmail, "email", "", "Account email")
		c.MarkFlagRequired("email")
	}
	registerCmd.Flags().StringVar(&authUsername, "username", "", "Account username")
	registerCmd.MarkFlagRequired("username")
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, registerCmd, passwordResetCmd, passwordResetConfirmCmd)
}
