// Package apidoc holds the OpenAPI document of the operator API.
package apidoc

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// BasePath is where the documented paths are mounted.
const BasePath = "/api/v1"

//go:embed openapi.yml
var document []byte

// Load parses and validates the embedded document.
func Load(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(document)
	if err != nil {
		return nil, fmt.Errorf("apidoc: parse: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("apidoc: invalid document: %w", err)
	}
	return doc, nil
}

// JSON renders doc for the swagger UI, which expects JSON content.
func JSON(doc *openapi3.T) ([]byte, error) {
	return doc.MarshalJSON()
}
