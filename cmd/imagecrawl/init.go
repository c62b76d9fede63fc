package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nao1215/imagecrawl/internal/config"
)

//go:embed templates/imagecrawl.yaml
var configTemplate embed.FS

// templatePath is the embedded template's path within configTemplate.
const templatePath = "templates/imagecrawl.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an imagecrawl configuration file",
		Long: `Init writes a commented .imagecrawl configuration file.

The generated file documents:
- Default settings applied to every site
- Per-site cookies, headers and crawl depth
- Link patterns to follow or ignore
- The <img> attribute preference list

Examples:
  # Create .imagecrawl in the current directory
  imagecrawl init

  # Create the file in the XDG config directory
  imagecrawl init -o ~/.config/imagecrawl/config.yaml

  # Overwrite an existing file
  imagecrawl init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite an existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := renderTemplate()
	if err != nil {
		return err
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure per-site settings such as:")
	fmt.Fprintln(out, "  - Cookies and request headers")
	fmt.Fprintln(out, "  - Crawl depth")
	fmt.Fprintln(out, "  - Link patterns to follow or ignore")
	return nil
}

// renderTemplate returns the embedded template after checking that it parses
// as a configuration file.
func renderTemplate() ([]byte, error) {
	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config template: %w", err)
	}
	var cf config.File
	if err := yaml.Unmarshal(content, &cf); err != nil {
		return nil, fmt.Errorf("config template is not valid YAML: %w", err)
	}
	return content, nil
}
