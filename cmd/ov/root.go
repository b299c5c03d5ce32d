package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// versionExitCode is the distinguished sentinel status -v/--version
// exits with, after printing the version to stderr. A caller invoking
// `-c -v` must not interpret "-v" as the config path: the persistent
// flag is handled before any subcommand's file-loading logic runs.
const versionExitCode = 64

const version = "0.1.0"

var configPath string
var printVersion bool

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ov",
		Short:         "ov: TLS/websocket reactor and multicast RTP recorder",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if printVersion || configPath == "-v" {
				fmt.Fprintln(os.Stderr, version)
				os.Exit(versionExitCode)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the JSON configuration file")
	cmd.PersistentFlags().BoolVarP(&printVersion, "version", "v", false, "print version and exit")

	serverGroup := &cobra.Group{ID: "server", Title: "Server Commands:"}
	cmd.AddGroup(serverGroup)

	webCmd := newWebserverCmd()
	webCmd.GroupID = serverGroup.ID
	recorderCmd := newRecorderCmd()
	recorderCmd.GroupID = serverGroup.ID

	cmd.AddCommand(webCmd, recorderCmd, newVersionCmd())

	return cmd
}
