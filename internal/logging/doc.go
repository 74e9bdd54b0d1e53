// Package logging configures structured slog output for the content search
// service: JSON lines to a size-rotated file under ~/.contentsearch/logs/,
// optionally mirrored to stderr.
package logging
