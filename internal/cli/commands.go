package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"flowseed/internal/apperr"
	"flowseed/internal/flowgraph"
	"flowseed/internal/rbac"
	"flowseed/internal/seed"
	"flowseed/internal/store"
)

func newMigrateCmd(app *App) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withEngine(cmd.Context(), func(e *seed.Engine) error {
				if down {
					return store.RollbackMigrations(cmd.Context(), e.DB())
				}
				return store.ApplyMigrations(cmd.Context(), e.DB())
			})
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll every migration back instead")
	return cmd
}

func newTablesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables a reset would empty",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withEngine(cmd.Context(), func(e *seed.Engine) error {
				tables, err := store.ListUserTables(cmd.Context(), e.DB())
				if err != nil {
					return err
				}
				return writeJSON(cmd, map[string]any{
					"dialect": e.DB().Dialect(),
					"tables":  tables,
					"ignored": store.IgnoredTables,
				})
			})
		},
	}
}

func newResetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Empty every user table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withEngine(cmd.Context(), func(e *seed.Engine) error {
				return e.ResetDatabase(cmd.Context())
			})
		},
	}
}

func newBaselineCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "baseline",
		Short: "Seed the organization, default template and baseline credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withEngine(cmd.Context(), func(e *seed.Engine) error {
				result, err := e.SeedBaseline(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd, result)
			})
		},
	}
}

func newScenarioCmd(app *App) *cobra.Command {
	var email, role string
	cmd := &cobra.Command{
		Use:   "scenario <name>",
		Short: "Apply a named scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := seed.LookupScenario(args[0]); err != nil {
				return err
			}
			opts := seed.ScenarioOptions{UserEmail: email}
			if role != "" {
				parsed, ok := rbac.Parse(role)
				if !ok {
					return apperr.Validation("unknown role", []string{role})
				}
				opts.Role = parsed
			}
			return app.withEngine(cmd.Context(), func(e *seed.Engine) error {
				result, err := e.SeedScenario(cmd.Context(), args[0], opts)
				if err != nil {
					return err
				}
				return writeJSON(cmd, result)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "seed this user instead of the configured admin")
	cmd.Flags().StringVar(&role, "role", "", "seed the configured user of this role (admin, builder, member)")
	return cmd
}

func newScenariosCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the built-in scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, sc := range seed.Scenarios() {
				if _, err := fmt.Fprintf(out, "%-34s %s\n", sc.Name, sc.Description); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

type credentialType struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Aliases     []string `json:"aliases"`
	DefaultName string   `json:"defaultName"`
	Fields      []string `json:"fields"`
}

func newTypesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the credential types the configuration enables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withEngine(cmd.Context(), func(e *seed.Engine) error {
				var types []credentialType
				for _, def := range e.Registry().Definitions() {
					types = append(types, credentialType{
						Name:        def.Name,
						Label:       def.Label,
						Aliases:     def.Aliases,
						DefaultName: def.DefaultName,
						Fields:      def.FieldNames(),
					})
				}
				return writeJSON(cmd, types)
			})
		},
	}
}

func newSeedCmd(app *App) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Apply a seed request from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			req, err := readRequest(file)
			if err != nil {
				return err
			}
			return app.withEngine(cmd.Context(), func(e *seed.Engine) error {
				result, err := e.SeedTestData(cmd.Context(), req)
				if err != nil {
					return err
				}
				return writeJSON(cmd, result)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed request file")
	return cmd
}

func readRequest(path string) (seed.TestConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return seed.TestConfig{}, fmt.Errorf("read seed request: %w", err)
	}
	var req seed.TestConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(raw, &req)
	default:
		err = yaml.Unmarshal(raw, &req)
	}
	if err != nil {
		return seed.TestConfig{}, fmt.Errorf("decode seed request %s: %w", path, err)
	}
	return req, nil
}

func newBindingsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "bindings <chatflow-id>",
		Short: "Show which credential ids a chatflow is bound to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withEngine(cmd.Context(), func(e *seed.Engine) error {
				flow, err := e.DB().Store().GetChatflow(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				graph, err := flowgraph.Parse(flow.FlowData)
				if err != nil {
					return err
				}
				bindings := make(map[string][]string)
				for _, credentialType := range graph.AcceptedTypes() {
					bindings[credentialType] = graph.Bindings(credentialType)
				}
				return writeJSON(cmd, map[string]any{
					"chatflow_id": flow.ID,
					"name":        flow.Name,
					"bindings":    bindings,
				})
			})
		},
	}
}
