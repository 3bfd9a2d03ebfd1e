package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration and connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor()
		},
	}
}

type checkResult struct {
	Name   string
	Passed bool
	Detail string
}

func runDoctor() error {
	var results []checkResult

	if path, err := configPath(); err == nil {
		if _, err := loadConfigFile(); err != nil {
			results = append(results, checkResult{Name: "config", Detail: "not loaded (" + path + "); run labweave-cli init"})
		} else {
			results = append(results, checkResult{Name: "config", Passed: true, Detail: path})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := apiClient.Health(ctx)
	if err != nil {
		results = append(results, checkResult{Name: "server", Detail: err.Error()})
	} else {
		results = append(results, checkResult{Name: "server", Passed: true, Detail: fmt.Sprintf("%s v%s", flagURL, health.Version)})
	}

	ready, err := apiClient.Ready(ctx)
	if err != nil {
		results = append(results, checkResult{Name: "backends", Detail: err.Error()})
	} else {
		names := make([]string, 0, len(ready.Checks))
		for name := range ready.Checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			status := ready.Checks[name]
			results = append(results, checkResult{Name: name, Passed: status == "ok", Detail: status})
		}
	}

	failed := 0
	for _, r := range results {
		mark := "ok  "
		if !r.Passed {
			mark = "FAIL"
			failed++
		}
		fmt.Printf("[%s] %-10s %s\n", mark, r.Name, r.Detail)
	}

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}
