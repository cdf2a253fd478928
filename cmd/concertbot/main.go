package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/app"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "concertbot",
		Short:        "Concert intake and attendance bot",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunServe()
		},
	})

	var opts app.ConsoleOptions
	consoleCmd := &cobra.Command{
		Use:   "console",
		Short: "Talk to the bot from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunConsole(os.Stdin, os.Stdout, opts)
		},
	}
	consoleCmd.Flags().Int64Var(&opts.UserID, "user-id", 1, "User ID to speak as")
	consoleCmd.Flags().StringVar(&opts.UserName, "user-name", "console", "Display name to speak as")
	consoleCmd.Flags().Int64Var(&opts.ChatID, "chat-id", 1, "Chat ID")
	consoleCmd.Flags().BoolVar(&opts.Group, "group", false, "Behave as a group chat (enables the admin gate)")
	consoleCmd.Flags().BoolVar(&opts.ServeHTTP, "http", false, "Also serve the read-only HTTP API")
	rootCmd.AddCommand(consoleCmd)

	var timeout time.Duration
	extractCmd := &cobra.Command{
		Use:   "extract <url>",
		Short: "Fetch a page and print its event metadata and concert guess",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunExtract(context.Background(), args[0], timeout, os.Stdout)
		},
	}
	extractCmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "Per-request timeout")
	rootCmd.AddCommand(extractCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunMigrate()
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
