// Package config reads slidewright.toml into a Config.
//
// Load starts from built-in defaults, decodes the TOML file found at the
// given path, ~/.config/slidewright/config.toml or ./slidewright.toml, then
// fills blanks from the environment (SLIDEWRIGHT_*, OPENROUTER_API_KEY),
// optionally seeded from a .env file. Paths come back absolute and
// tilde-expanded, and Validate rejects out-of-range pipeline, analysis and
// render defaults before any component starts.
package config
