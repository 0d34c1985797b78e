// Package config handles loading, validating and persisting ACS Auto configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Write-through updates of the automation tunables and template lists
//
// The Store is the runtime view: searches read delays and confidence from it
// on every call, and a settings save writes the YAML file immediately.
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file is written with 0600 permissions
//   - The control API requires a JWT secret unless it listens on loopback
//
// Usage:
//
//	store, regenerated, err := config.LoadOrCreate("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	delay := store.Automation().ScreenshotDelay
package config
