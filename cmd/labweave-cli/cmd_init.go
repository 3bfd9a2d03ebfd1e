package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/labweave/labweave/client"
)

func newInitCmd() *cobra.Command {
	var (
		initURL  string
		initUser string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up LabWeave CLI configuration",
		Long:  "Interactive setup that creates ~/.labweave/config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			nonInteractive := initURL != "" || initUser != ""
			return runInit(initURL, initUser, nonInteractive)
		},
	}

	cmd.Flags().StringVar(&initURL, "server", "", "Server URL (non-interactive mode)")
	cmd.Flags().StringVar(&initUser, "as", "", "User id (non-interactive mode)")
	return cmd
}

func runInit(url, user string, nonInteractive bool) error {
	if !nonInteractive {
		reader := bufio.NewReader(os.Stdin)

		fmt.Printf("Server URL [%s]: ", defaultURL)
		line, _ := reader.ReadString('\n')
		url = strings.TrimSpace(line)

		fmt.Print("User id (optional): ")
		line, _ = reader.ReadString('\n')
		user = strings.TrimSpace(line)
	}

	if url == "" {
		url = defaultURL
	}

	ver, err := testConnection(url)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	fmt.Printf("Connected to %s (v%s)\n", url, ver)

	cfgPath, err := writeConfig(url, user)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("Config saved to %s\n", cfgPath)

	return nil
}

func testConnection(url string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := client.New(url).Health(ctx)
	if err != nil {
		return "", err
	}
	if health.Version == "" {
		return "unknown", nil
	}
	return health.Version, nil
}

func writeConfig(url, user string) (string, error) {
	cfgPath, err := configPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(configFile{
		Profiles:      map[string]configProfile{"default": {URL: url, User: user}},
		ActiveProfile: "default",
	})
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		return "", err
	}
	return cfgPath, nil
}
