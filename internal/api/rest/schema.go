package rest

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	schemaCreateIncident    = "create-incident"
	schemaRejectIncident    = "reject-incident"
	schemaAssignRepair      = "assign-repair"
	schemaCompleteRepair    = "complete-repair"
	schemaDeclineRepair     = "decline-repair"
	schemaRejectRepair      = "reject-repair"
	schemaRepairNotNeeded   = "repair-not-needed"
	schemaCreateReplacement = "create-replacement"
	schemaLiquidate         = "liquidate"
	schemaLiquidateBatch    = "liquidate-batch"
)

const maxBodySize = 1 << 20

// Validator checks request bodies against the embedded JSON schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	compiler.AssertFormat = true

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		data, err := schemaFS.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		if err := compiler.AddResource(name+".json", bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to add schema resource %s: %w", name, err)
		}
		names = append(names, name)
	}

	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		schema, err := compiler.Compile(name + ".json")
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		v.schemas[name] = schema
	}
	return v, nil
}

// Validate checks raw JSON against the named schema.
func (v *Validator) Validate(name string, data []byte) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// bind validates the request body against schema and decodes it into dst.
// On failure it writes the 400 response and returns false.
func (s *Server) bind(c *gin.Context, schema string, dst any) bool {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize))
	if err != nil {
		badRequest(c, "failed to read request body", err.Error())
		return false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("{}")
	}
	if err := s.validator.Validate(schema, data); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		badRequest(c, "invalid request body", err.Error())
		return false
	}
	return true
}
