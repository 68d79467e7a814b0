// Package config loads, normalizes, and validates banana3d configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the BANANA3D_API_KEY environment
// fallback. Derived locations such as the lock file, history database, and
// log directory hang off paths.state_dir so the CLI discovers everything in
// one pass.
package config
