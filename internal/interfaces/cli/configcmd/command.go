package configcmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vetiver-inc/vetiver/internal/infrastructure/config"
)

var (
	env    string
	output string
	force  bool
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration tools",
		Long:  `Inspect the effective configuration or scaffold a config file from the built-in defaults.`,
	}

	cmd.AddCommand(
		newInitCommand(),
		newShowCommand(),
	)

	return cmd
}

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default values",
		RunE:  runInit,
	}

	cmd.Flags().StringVarP(&output, "output", "o", "./configs/config.yaml", "Path of the config file to write")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func newShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  `Load the configuration the server would use (file, environment variables and defaults merged) and print it as YAML. Secrets are masked.`,
		RunE:  runShow,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")

	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	if !force {
		if _, err := os.Stat(output); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", output)
		}
	}

	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("failed to render default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("wrote default config to %s\n", output)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	masked := *cfg
	masked.Database.Password = maskSecret(masked.Database.Password)
	masked.Redis.Password = maskSecret(masked.Redis.Password)
	masked.Email.SMTPPassword = maskSecret(masked.Email.SMTPPassword)
	masked.Master.APIToken = maskSecret(masked.Master.APIToken)

	data, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	fmt.Print(string(data))
	return nil
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
