// Package config resolves the shared configuration for observatory
// control daemons.
//
// Configuration is layered, later sources win:
//
//  1. Built-in defaults
//  2. A gtecs.{toml,yaml,json} file in the config directory (see Dir)
//  3. .env and .env.local files in the working directory
//  4. GTECS_* environment variables
//
// All daemons on a site read the same file, so a single edit moves the
// whole site to a different database or toggles offline writes.
package config
