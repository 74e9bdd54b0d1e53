// Package configs embeds the configuration template written by
// `contentsearch init`.
package configs

import _ "embed"

// ProjectConfigTemplate is the commented contentsearch.yaml written by
// `contentsearch init`. Every setting is commented out so the defaults apply.
//
//go:embed contentsearch.example.yaml
var ProjectConfigTemplate string
