// Command labweave-cli is a command-line client for the LabWeave API.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/labweave/labweave/client"
)

// Build-time variables set via ldflags.
var (
	version   = "0.1.0"
	commit    = ""
	buildDate = ""
)

const defaultURL = "http://localhost:3030"

var (
	apiClient *client.Client
	flagURL   string
	flagUser  string
	flagFmt   string
)

func versionString() string {
	if commit != "" && buildDate != "" {
		return fmt.Sprintf("labweave-cli version %s (commit: %s, built: %s)", version, commit, buildDate)
	}
	return fmt.Sprintf("labweave-cli version %s-dev", version)
}

// configFile is ~/.labweave/config.yaml.
type configFile struct {
	Profiles      map[string]configProfile `yaml:"profiles"`
	ActiveProfile string                   `yaml:"active_profile"`
}

type configProfile struct {
	URL  string `yaml:"url"`
	User string `yaml:"user,omitempty"`
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "labweave-cli",
		Short:   "LabWeave CLI for versioned lab documents and their knowledge graph",
		Version: versionString(),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			resolveConfig()
			var opts []client.Option
			if flagUser != "" {
				opts = append(opts, client.WithUserID(flagUser))
			}
			apiClient = client.New(flagURL, opts...)
		},
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&flagURL, "url", defaultURL, "LabWeave server URL (env: LABWEAVE_URL)")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", "", "Caller identity sent as X-User-ID (env: LABWEAVE_USER)")
	rootCmd.PersistentFlags().StringVar(&flagFmt, "format", "json", "Output format: json|table|quiet")

	initCmd := newInitCmd()
	initCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {} // skip client setup

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(newDoctorCmd())
	rootCmd.AddCommand(newDocCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGraphCmd())
	rootCmd.AddCommand(newAdminCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".labweave", "config.yaml"), nil
}

func loadConfigFile() (*configFile, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// activeProfile returns the selected profile, or a zero profile.
func (c *configFile) activeProfile() configProfile {
	name := c.ActiveProfile
	if name == "" {
		name = "default"
	}
	return c.Profiles[name]
}

func resolveConfig() {
	// Flag takes precedence, then env, then config file.
	if flagURL == defaultURL {
		if v := os.Getenv("LABWEAVE_URL"); v != "" {
			flagURL = v
		}
	}
	if flagUser == "" {
		flagUser = os.Getenv("LABWEAVE_USER")
	}

	cfg, err := loadConfigFile()
	if err != nil {
		return
	}
	p := cfg.activeProfile()
	if flagURL == defaultURL && p.URL != "" {
		flagURL = p.URL
	}
	if flagUser == "" && p.User != "" {
		flagUser = p.User
	}
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	os.Exit(1)
}
