// Package openapi embeds the relay's OpenAPI description.
package openapi

import _ "embed"

// Spec is the OpenAPI 3 document in YAML.
//
//go:embed openapi.yaml
var Spec []byte
