package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackjuly/ultra-mcp/dashboard"
	"github.com/blackjuly/ultra-mcp/memory"
	"github.com/blackjuly/ultra-mcp/mcptools"
	"github.com/blackjuly/ultra-mcp/relay"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tool catalog over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := buildMCPServer(a)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return server.Run(ctx)
		},
	}
}

func newDashboardCommand(a *app) *cobra.Command {
	var port int
	var dev bool

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Serve the HTTP dashboard and the streamable MCP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.Store()
			if err != nil {
				return err
			}
			db, err := a.DB()
			if err != nil {
				return err
			}
			pricingSvc, err := a.Pricing()
			if err != nil {
				return err
			}
			mcpServer, err := buildMCPServer(a)
			if err != nil {
				return err
			}

			registry := relay.NewRegistry(store, nil)
			server := dashboard.New(db, memory.New(db), pricingSvc, registry, mcpServer.GinHandler())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return server.Run(ctx, port, dev)
		},
	}
	cmd.Flags().IntVar(&port, "port", 4000, "listen port")
	cmd.Flags().BoolVar(&dev, "dev", false, "verbose request logging")
	return cmd
}

func buildMCPServer(a *app) (*mcptools.Server, error) {
	engine, err := a.Engine()
	if err != nil {
		return nil, err
	}
	db, err := a.DB()
	if err != nil {
		return nil, err
	}
	return mcptools.NewServer(engine, memory.New(db), db), nil
}
