package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

const schemaID = "https://github.com/haasonsaas/agentcore/schema/config.json"

// JSONSchema describes the config file for editors and `agentcore schema`.
// Property names follow the yaml tags.
func JSONSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		FieldNameTag:   "yaml",
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&Config{})
	schema.ID = jsonschema.ID(schemaID)
	schema.Title = "agentcore configuration"
	schema.Description = "Server, storage, queue, automation and agent settings."
	return json.MarshalIndent(schema, "", "  ")
}
