// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/aegis/internal/config"
	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/secrets"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage backend API keys stored in the OS keyring",
		Long: `Store, inspect and delete backend API keys held under the aegis service in
the operating system keyring. Reference a stored key from the config file as
keyring://aegis/<backend>-api-key.`,
	}

	cmd.AddCommand(
		newSecretSetCmd(),
		newSecretGetCmd(),
		newSecretListCmd(),
		newSecretDeleteCmd(),
	)

	return cmd
}

func newSecretSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <backend>",
		Short: "Store the API key of a backend",
		Long:  "Store a backend API key. The key is read from --value or, when omitted, from the first line of stdin.",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretSet,
	}
	cmd.Flags().String("value", "", "API key (prefer stdin to keep it out of shell history)")
	cmd.Flags().Bool("write-config", false, "point providers.<backend>.api_key in the config file at the stored key")
	return cmd
}

func newSecretGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <backend>",
		Short: "Show whether a backend API key is stored",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretGet,
	}
	cmd.Flags().Bool("reveal", false, "print the full key instead of a masked form")
	return cmd
}

func newSecretListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all stored secret names",
		RunE:  runSecretList,
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <backend>",
		Short: "Delete the stored API key of a backend",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretDelete,
	}
}

// backendArg validates a backend kind argument.
func backendArg(arg string) (provider.Kind, error) {
	kind := provider.Kind(strings.ToLower(strings.TrimSpace(arg)))
	if !kind.Valid() || kind == provider.KindDummy {
		return "", sigilerr.Errorf(sigilerr.CodeCLIInputInvalid,
			"unknown backend %q (want one of openai, anthropic, google, openrouter, azure, background)", arg)
	}
	return kind, nil
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	kind, err := backendArg(args[0])
	if err != nil {
		return err
	}

	value, _ := cmd.Flags().GetString("value")
	if value == "" {
		if value, err = readLine(cmd.InOrStdin()); err != nil {
			return err
		}
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return sigilerr.New(sigilerr.CodeCLIInputInvalid, "API key must not be empty")
	}

	store := secretStoreFactory()
	if err := store.Store(secrets.DefaultService, secrets.BackendKey(string(kind)), value); err != nil {
		return sigilerr.Errorf(sigilerr.CodeSecretStoreFailure, "storing %s API key: %w", kind, err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Stored %s API key as %s\n", kind, secrets.BackendURI(string(kind)))

	if write, _ := cmd.Flags().GetBool("write-config"); write {
		path, err := configPathForWrite(cmd)
		if err != nil {
			return err
		}
		if err := config.SetProviderKeyRef(path, kind); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Updated %s\n", path)
	}
	return nil
}

func runSecretGet(cmd *cobra.Command, args []string) error {
	kind, err := backendArg(args[0])
	if err != nil {
		return err
	}

	store := secretStoreFactory()
	value, err := store.Retrieve(secrets.DefaultService, secrets.BackendKey(string(kind)))
	if err != nil {
		if sigilerr.HasCode(err, sigilerr.CodeSecretNotFound) {
			return sigilerr.Errorf(sigilerr.CodeSecretNotFound, "no API key stored for %s", kind)
		}
		return sigilerr.Errorf(sigilerr.CodeSecretResolveFailure, "reading %s API key: %w", kind, err)
	}

	if reveal, _ := cmd.Flags().GetBool("reveal"); !reveal {
		value = maskSecret(value)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", kind, value)
	return err
}

func runSecretList(cmd *cobra.Command, _ []string) error {
	store := secretStoreFactory()
	keys, err := store.List(secrets.DefaultService)
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeSecretStoreFailure, "listing secrets: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(out, "No secrets stored.")
		return nil
	}

	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintln(out, k)
	}
	return nil
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	kind, err := backendArg(args[0])
	if err != nil {
		return err
	}
	store := secretStoreFactory()

	if err := store.Delete(secrets.DefaultService, secrets.BackendKey(string(kind))); err != nil {
		if sigilerr.HasCode(err, sigilerr.CodeSecretNotFound) {
			return sigilerr.Errorf(sigilerr.CodeSecretNotFound, "no API key stored for %s", kind)
		}
		return sigilerr.Errorf(sigilerr.CodeSecretStoreFailure, "deleting %s API key: %w", kind, err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s API key\n", kind)
	return nil
}

// maskSecret keeps the last four characters of keys long enough to hide.
func maskSecret(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("•", len(s))
	}
	return strings.Repeat("•", 8) + s[len(s)-4:]
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "reading API key: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// configPathForWrite is the --config path, or the default config location.
func configPathForWrite(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, nil
	}
	path, err := config.DefaultConfigPath()
	if err != nil {
		return "", sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "resolving config path")
	}
	return path, nil
}
