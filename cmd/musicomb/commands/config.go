package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alitavanaali/MusiComb/pkg/cli"
	"github.com/alitavanaali/MusiComb/pkg/storage"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage CLI configuration and contexts.

A context names where arrangements are written (a local directory or an
S3 bucket), where runs are indexed and how long the solver may search.

Configuration is stored in ~/.musicomb/config.yaml`,
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add a new context",
	Long: `Add a new context with the specified name.

Example:
  musicomb config add-context local --dir ./songs --solver-timeout 60
  musicomb config add-context minio --backend s3 --bucket songs \
    --endpoint http://localhost:9000 --path-style \
    --access-key-id KEY --secret-access-key SECRET
  musicomb config add-context ci --index memory --percussion-bias -1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		flags := cmd.Flags()

		// All string flags are registered in init.
		str := func(flag string) string {
			v, _ := flags.GetString(flag)
			return v
		}
		timeout, err := flags.GetInt("solver-timeout")
		if err != nil {
			return fmt.Errorf("failed to read 'solver-timeout' flag: %w", err)
		}
		bias, err := flags.GetFloat64("percussion-bias")
		if err != nil {
			return fmt.Errorf("failed to read 'percussion-bias' flag: %w", err)
		}
		pathStyle, err := flags.GetBool("path-style")
		if err != nil {
			return fmt.Errorf("failed to read 'path-style' flag: %w", err)
		}

		ctx := &cli.Context{
			Storage: cli.StorageConfig{
				Backend: str("backend"),
				Dir:     str("dir"),
				Bucket:  str("bucket"),
				Prefix:  str("prefix"),
				S3: storage.S3Config{
					Region:          str("region"),
					Endpoint:        str("endpoint"),
					AccessKeyID:     str("access-key-id"),
					SecretAccessKey: str("secret-access-key"),
					PathStyle:       pathStyle,
				},
			},
			Index:          str("index"),
			SolverTimeout:  timeout,
			PercussionBias: bias,
			Profile:        str("profile"),
			Programs:       str("programs"),
		}

		cfg := getConfig()
		if err := cfg.AddContext(name, ctx); err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			if err := cfg.UseContext(name); err != nil {
				return err
			}
		}

		cli.PrintSuccess("Context %q added successfully", name)
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		cfg := getConfig()
		if err := cfg.DeleteContext(name); err != nil {
			return err
		}

		cli.PrintSuccess("Context %q deleted", name)
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		cfg := getConfig()
		if err := cfg.UseContext(name); err != nil {
			return err
		}

		cli.PrintSuccess("Switched to context %q", name)
		return nil
	},
}

var configGetContextCmd = &cobra.Command{
	Use:   "get-context",
	Short: "Display the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()

		if cfg.CurrentContext == "" {
			fmt.Println("No current context set")
			return nil
		}

		fmt.Println(cfg.CurrentContext)
		return nil
	},
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"get-contexts"},
	Short:   "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()

		if len(cfg.Contexts) == 0 {
			fmt.Println("No contexts configured")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tBACKEND\tLOCATION\tINDEX")

		for _, name := range cfg.ListContexts() {
			ctx := cfg.Contexts[name]
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			backend, location := storageLocation(ctx.Storage)
			index := ctx.Index
			if index == "" {
				index = "(default)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", current, name, backend, location, index)
		}

		w.Flush()
		return nil
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()

		fmt.Printf("Config file: %s\n", cfg.Path())
		fmt.Printf("Current context: %s\n", cfg.CurrentContext)
		fmt.Printf("Contexts: %d\n", len(cfg.Contexts))

		if len(cfg.Contexts) > 0 {
			fmt.Println("\nContext details:")
			for _, name := range cfg.ListContexts() {
				ctx := cfg.Contexts[name]
				backend, location := storageLocation(ctx.Storage)
				fmt.Printf("\n  %s:\n", name)
				fmt.Printf("    Storage: %s %s\n", backend, location)
				if s3 := ctx.Storage.S3; backend == cli.BackendS3 {
					if s3.Region != "" {
						fmt.Printf("    Region: %s\n", s3.Region)
					}
					if s3.Endpoint != "" {
						fmt.Printf("    Endpoint: %s\n", s3.Endpoint)
					}
					if s3.AccessKeyID != "" {
						fmt.Printf("    Access Key: %s\n", cli.MaskSecret(s3.AccessKeyID))
						fmt.Printf("    Secret Key: %s\n", cli.MaskSecret(s3.SecretAccessKey))
					}
				}
				if ctx.Index != "" {
					fmt.Printf("    Index: %s\n", ctx.Index)
				}
				if ctx.SolverTimeout > 0 {
					fmt.Printf("    Solver Timeout: %ds\n", ctx.SolverTimeout)
				}
				if ctx.PercussionBias != 0 {
					fmt.Printf("    Percussion Bias: %g\n", ctx.PercussionBias)
				}
				if ctx.Profile != "" {
					fmt.Printf("    Profile: %s\n", ctx.Profile)
				}
				if ctx.Programs != "" {
					fmt.Printf("    Programs: %s\n", ctx.Programs)
				}
			}
		}

		return nil
	},
}

func init() {
	f := configAddContextCmd.Flags()
	f.String("backend", cli.BackendLocal, "storage backend: local or s3")
	f.String("dir", "", "local output directory (default ~/.musicomb/output)")
	f.String("bucket", "", "S3 bucket")
	f.String("prefix", "", "S3 key prefix")
	f.String("region", "", "S3 region")
	f.String("endpoint", "", "S3-compatible endpoint URL")
	f.String("access-key-id", "", "S3 access key id")
	f.String("secret-access-key", "", "S3 secret access key")
	f.Bool("path-style", false, "address S3 buckets by path")
	f.String("index", "", "run index directory, or 'memory' (default ~/.musicomb/index)")
	f.Int("solver-timeout", 0, "solver time limit in seconds (default 100)")
	f.Float64("percussion-bias", 0, "probability of forcing a drum repeat, negative disables (default 0.8)")
	f.String("profile", "", "section profile YAML")
	f.String("programs", "", "instrument program map YAML")

	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configGetContextCmd)
	configCmd.AddCommand(configListContextsCmd)
	configCmd.AddCommand(configViewCmd)
}

func getConfig() *cli.Config {
	if globalConfig == nil {
		fmt.Fprintln(os.Stderr, "Error: configuration not initialized")
		os.Exit(1)
	}
	return globalConfig
}

func storageLocation(s cli.StorageConfig) (backend, location string) {
	if s.Backend == cli.BackendS3 {
		location = "s3://" + s.Bucket
		if s.Prefix != "" {
			location += "/" + s.Prefix
		}
		return cli.BackendS3, location
	}
	if s.Dir == "" {
		return cli.BackendLocal, "(default)"
	}
	return cli.BackendLocal, s.Dir
}
