package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const authConfigSchemaID = "https://authcore.local/schemas/auth-config-patch.json"

var (
	patchSchemaOnce sync.Once
	patchSchema     *jschema.Schema
	patchSchemaErr  error
)

// AuthConfigPatchSchema genera el JSON Schema de un patch de AuthConfig a
// partir del struct. Todos los campos son opcionales y no se aceptan
// propiedades desconocidas.
func AuthConfigPatchSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	s := r.Reflect(&AuthConfig{})
	s.ID = jsonschema.ID(authConfigSchemaID)
	s.Title = "AuthConfig patch"
	for _, k := range []string{"id", "tenantId", "createdAt", "updatedAt"} {
		s.Properties.Delete(k)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal auth config schema: %w", err)
	}
	return data, nil
}

func compiledPatchSchema() (*jschema.Schema, error) {
	patchSchemaOnce.Do(func() {
		raw, err := AuthConfigPatchSchema()
		if err != nil {
			patchSchemaErr = err
			return
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			patchSchemaErr = fmt.Errorf("parse auth config schema: %w", err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource(authConfigSchemaID, doc); err != nil {
			patchSchemaErr = fmt.Errorf("add auth config schema: %w", err)
			return
		}
		patchSchema, patchSchemaErr = c.Compile(authConfigSchemaID)
	})
	return patchSchema, patchSchemaErr
}

// ValidatePatch valida un documento PATCH /config contra el schema.
func ValidatePatch(patch AuthConfigPatch) error {
	sch, err := compiledPatchSchema()
	if err != nil {
		return err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(patch))
	if err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("auth config patch: %w", err)
	}
	return nil
}
