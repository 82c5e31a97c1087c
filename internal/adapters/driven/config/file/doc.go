// Package file provides file-based implementations of driven port interfaces.
// These adapters read and persist data on the local filesystem.
//
// Adapters:
//   - ConfigStore: TOML-based key/value configuration storage
//   - LoadSettings: typed engine, policy, site and schedule configuration
//   - StaticRegistry: site registry built from [[sites]] or a YAML sites file
//   - Watcher: reloads the sync policy when the configuration file changes
package file
