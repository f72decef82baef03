package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/spf13/cobra"

	"github.com/blackjuly/ultra-mcp/common/helper"
	"github.com/blackjuly/ultra-mcp/relay/channeltype"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configure provider credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigWizard(a, cmd)
		},
	}

	cmd.AddCommand(
		newConfigShowCommand(a),
		newConfigSetCommand(a),
		newConfigResetCommand(a),
		newConfigPathCommand(a),
	)
	return cmd
}

// runConfigWizard is the interactive flow: pick a provider, enter a key and
// optional endpoint settings, repeat until done.
func runConfigWizard(a *app, cmd *cobra.Command) error {
	store, err := a.Store()
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	out := cmd.OutOrStdout()
	prompt := func(label string) (string, bool) {
		fmt.Fprintf(out, "%s: ", label)
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}

	fmt.Fprintln(out, "Providers: openai, gemini, azure, grok, bailian, openai-compatible")
	fmt.Fprintln(out, "Press enter on an empty provider to finish.")

	for {
		name, ok := prompt("provider")
		if !ok || name == "" {
			break
		}
		kind, valid := channeltype.Parse(name)
		if !valid {
			fmt.Fprintf(out, "unknown provider %q\n", name)
			continue
		}

		key, ok := prompt("api key (empty keeps current)")
		if !ok {
			break
		}
		if key != "" {
			if err := store.SetAPIKey(kind, &key); err != nil {
				return err
			}
		}

		baseURL, ok := prompt("base url (optional)")
		if !ok {
			break
		}
		if baseURL != "" {
			if err := store.SetBaseURL(kind, &baseURL); err != nil {
				return err
			}
		}

		preferred, ok := prompt("preferred model (optional)")
		if !ok {
			break
		}
		if preferred != "" {
			if err := store.SetPreferredModel(kind, &preferred); err != nil {
				return err
			}
		}

		if kind == channeltype.Azure {
			resource, ok := prompt("azure resource name (optional)")
			if !ok {
				break
			}
			if resource != "" {
				if err := store.SetAzureResourceName(&resource); err != nil {
					return err
				}
			}
		}

		fmt.Fprintf(out, "saved %s\n", kind)
	}

	fmt.Fprintf(out, "configuration written to %s\n", store.GetConfigPath())
	return nil
}

func newConfigShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with masked keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.Store()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			for _, kind := range channeltype.All() {
				cred := store.Credential(kind)
				if cred.APIKey == "" && cred.BaseURL == "" && cred.PreferredModel == "" {
					continue
				}
				fmt.Fprintf(out, "%s:\n", kind)
				if cred.APIKey != "" {
					fmt.Fprintf(out, "  apiKey: %s\n", helper.MaskAPIKey(cred.APIKey))
				}
				if cred.BaseURL != "" {
					fmt.Fprintf(out, "  baseURL: %s\n", cred.BaseURL)
				}
				if cred.PreferredModel != "" {
					fmt.Fprintf(out, "  preferredModel: %s\n", cred.PreferredModel)
				}
			}
			cfg := store.GetConfig()
			if cfg.Vector.Provider != "" || cfg.Vector.Model != "" {
				fmt.Fprintf(out, "vector: provider=%s model=%s\n", cfg.Vector.Provider, cfg.Vector.Model)
			}
			return nil
		},
	}
}

func newConfigSetCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <field> <provider> [value]",
		Short: "Set one configuration field non-interactively",
		Long: "Fields: api-key, base-url, model, azure-resource, subtype, models, vector.\n" +
			"An omitted value clears the field.",
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.Store()
			if err != nil {
				return err
			}

			field := args[0]
			var value *string
			if len(args) == 3 {
				value = &args[2]
			}

			switch field {
			case "azure-resource":
				// args[1] is the value for provider-free fields.
				v := args[1]
				return store.SetAzureResourceName(&v)
			case "subtype":
				return store.SetCompatibleSubtype(args[1])
			case "models":
				return store.SetCompatibleModels(strings.Split(args[1], ","))
			case "vector":
				provider := args[1]
				return store.SetVectorConfig(&provider, value)
			}

			kind, ok := channeltype.Parse(args[1])
			if !ok {
				return errors.Errorf("unknown provider %q", args[1])
			}
			switch field {
			case "api-key":
				return store.SetAPIKey(kind, value)
			case "base-url":
				return store.SetBaseURL(kind, value)
			case "model":
				return store.SetPreferredModel(kind, value)
			default:
				return errors.Errorf("unknown field %q", field)
			}
		},
	}
	return cmd
}

func newConfigResetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear all stored configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.Store()
			if err != nil {
				return err
			}
			return store.Reset()
		},
	}
}

func newConfigPathCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.Store()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), store.GetConfigPath())
			return nil
		},
	}
}
