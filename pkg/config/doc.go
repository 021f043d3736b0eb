// Package config loads keystash settings.
//
// Settings are layered with koanf, later sources replacing earlier ones key
// by key:
//
//  1. Built-in defaults (embedded/defaults.json plus XDG-derived paths)
//  2. The config file, JSON or TOML by extension
//     (default $XDG_CONFIG_HOME/keystash/config.json)
//  3. KEYSTASH_* environment variables, e.g. KEYSTASH_ARCHIVE_FORMAT=zip
//
// Configuration problems never stop a run on their own. A missing file is
// created from the defaults; an unreadable or malformed one is ignored in
// favour of the defaults and reported through Settings.Warnings.
package config
