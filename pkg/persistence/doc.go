// Package persistence stores integration entries across bridge restarts.
//
// Entries are kept in a single JSON state file. Runtime state (load state,
// listeners, coordinators) is never persisted; only the configuration that
// the user created through the config flow.
package persistence
