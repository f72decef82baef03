// Package cli implements the ultra-mcp command tree: MCP serving, credential
// setup, diagnostics, pricing-cache inspection, and tracking-database views.
package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/blackjuly/ultra-mcp/common/logger"
	"github.com/blackjuly/ultra-mcp/config"
	"github.com/blackjuly/ultra-mcp/model"
	"github.com/blackjuly/ultra-mcp/pricing"
	"github.com/blackjuly/ultra-mcp/relay"
	"github.com/blackjuly/ultra-mcp/tracker"
)

// app lazily constructs the shared services so cheap commands (config, help)
// never touch the database or the network.
type app struct {
	store   *config.Store
	db      *gorm.DB
	pricing *pricing.Service
}

func (a *app) Store() (*config.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	path, err := config.FilePath()
	if err != nil {
		return nil, err
	}
	store, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

func (a *app) DB() (*gorm.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	path, err := config.DatabasePath()
	if err != nil {
		return nil, err
	}
	db, err := model.OpenDB(path)
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

func (a *app) Pricing() (*pricing.Service, error) {
	if a.pricing != nil {
		return a.pricing, nil
	}
	path, err := config.PricingCachePath()
	if err != nil {
		return nil, err
	}
	a.pricing = pricing.NewService(path)
	return a.pricing, nil
}

func (a *app) Engine() (*relay.Engine, error) {
	store, err := a.Store()
	if err != nil {
		return nil, err
	}
	db, err := a.DB()
	if err != nil {
		return nil, err
	}
	pricingSvc, err := a.Pricing()
	if err != nil {
		return nil, err
	}
	return relay.NewEngine(relay.NewRegistry(store, nil), tracker.New(db, pricingSvc)), nil
}

func (a *app) Close() {
	if a.db != nil {
		_ = model.CloseDB(a.db)
	}
}

// NewRootCommand assembles the full command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "ultra-mcp",
		Short:         "Unified MCP gateway for multiple LLM providers",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A missing .env is not an error.
			_ = godotenv.Load()
			logger.Setup(os.Getenv("ULTRA_MCP_DEBUG") != "")
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.Close()
		},
	}

	root.AddCommand(
		newServeCommand(a),
		newDashboardCommand(a),
		newConfigCommand(a),
		newDoctorCommand(a),
		newInstallCommand(),
		newPricingCommand(a),
		newDBCommand(a),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		return 1
	}
	return 0
}
