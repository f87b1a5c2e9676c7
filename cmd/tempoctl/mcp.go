package main

import (
	"errors"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/meltforce/tempo/internal/mcp"
)

// newMCPCmd serves the MCP tools over stdio, reading from the tempo server
// instead of a local database. It never touches the local session.
func newMCPCmd(a *app, cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools over stdio, backed by the tempo server",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(*cfgPath)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.ServerURL == "" {
				return errors.New("mcp needs server_url in the client config")
			}
			ds := mcp.NewHTTPClient(a.cfg.ServerURL, a.cfg.APIKey)
			s := mcp.New(ds, mcp.Options{
				Version:    Version,
				Clock:      a.clock,
				StaleAfter: a.cfg.Session.StaleAfter,
				Logger:     a.log,
			})
			stdio := mcpserver.NewStdioServer(s)
			return stdio.Listen(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}
