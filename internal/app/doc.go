// Package app contains the core application logic. It wires configuration,
// the cache, the synthesis client and the pipeline stages into an App and
// runs one generation, decoupled from any specific entrypoint like a CLI.
package app
