// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

// defaultAddress is where the gateway listens without a config override.
const defaultAddress = "127.0.0.1:8080"

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show gateway status",
		Long:  "Query the running gateway's health endpoint and display its status and version.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", defaultAddress, "gateway address to check")

	return cmd
}

// healthStatus is the body of GET /health.
type healthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	var body healthStatus
	if err := newGatewayClient(addr, "").getJSON(cmd.Context(), "/health", &body); err != nil {
		if sigilerr.HasCode(err, sigilerr.CodeCLIGatewayNotRunning) {
			_, _ = fmt.Fprintf(out, "Gateway at %s is not running (connection refused)\n", addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Gateway at %s: %s\n", addr, err)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Gateway at %s: %s (version %s)\n", addr, body.Status, body.Version)
	return nil
}
