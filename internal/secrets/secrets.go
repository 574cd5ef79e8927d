// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

// DefaultService is the keyring service aegis stores backend keys under.
const DefaultService = "aegis"

// Store holds secrets by service and key.
type Store interface {
	Store(service, key, value string) error
	// Retrieve reports CodeSecretNotFound when the key does not exist.
	Retrieve(service, key string) (string, error)
	Delete(service, key string) error
	// List returns the key names stored under service.
	List(service string) ([]string, error)
}

// BackendKey is the key name holding the API key of a backend kind.
func BackendKey(kind string) string {
	return kind + "-api-key"
}

// BackendURI is the keyring reference for a backend's API key, suitable for
// providers.<kind>.api_key in the config file.
func BackendURI(kind string) string {
	return keyringScheme + DefaultService + "/" + BackendKey(kind)
}
