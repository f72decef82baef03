package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/spf13/cobra"

	"github.com/blackjuly/ultra-mcp/config"
	"github.com/blackjuly/ultra-mcp/relay"
	relaymodel "github.com/blackjuly/ultra-mcp/relay/model"
)

func newDoctorCommand(a *app) *cobra.Command {
	var liveTest bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the installation and provider readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			configPath, err := config.FilePath()
			if err != nil {
				return err
			}
			check(out, "config file", configPath, fileExists(configPath))

			dbPath, err := config.DatabasePath()
			if err != nil {
				return err
			}
			check(out, "database", dbPath, fileExists(dbPath))

			cachePath, err := config.PricingCachePath()
			if err != nil {
				return err
			}
			check(out, "pricing cache", cachePath, fileExists(cachePath))

			store, err := a.Store()
			if err != nil {
				return err
			}
			registry := relay.NewRegistry(store, nil)
			configured := registry.ConfiguredProviders()
			for _, kind := range configured {
				fmt.Fprintf(out, "  [ok] provider %s configured\n", kind)
			}

			if len(configured) == 0 {
				fmt.Fprintln(out, "  [!!] no provider configured; run `ultra-mcp config`")
				return errors.New("no provider configured")
			}

			if liveTest {
				return runLiveTest(a, cmd)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&liveTest, "test", false, "issue a live test call to the default provider")
	return cmd
}

// runLiveTest sends a tiny generation to the first configured provider.
func runLiveTest(a *app, cmd *cobra.Command) error {
	engine, err := a.Engine()
	if err != nil {
		return err
	}

	maxTokens := 16
	started := time.Now()
	resp, err := engine.Generate(cmd.Context(), &relaymodel.GenerateRequest{
		Prompt:          "Reply with the single word: ok",
		MaxOutputTokens: &maxTokens,
		ToolName:        "doctor",
	})
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "  [!!] live test failed: %v\n", err)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  [ok] live test via %s (%s) in %s\n",
		resp.Provider, resp.Model, time.Since(started).Round(time.Millisecond))
	return nil
}

func check(out io.Writer, label, path string, ok bool) {
	mark := "[--]"
	if ok {
		mark = "[ok]"
	}
	fmt.Fprintf(out, "  %s %s: %s\n", mark, label, path)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
