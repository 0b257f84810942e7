package chatconfig

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON Schema of the configuration payload.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	s := r.Reflect(&ChatbotData{})
	s.Title = "ChatbotData"
	s.Description = "Per-tenant chat configuration returned by /api/get_config"
	return json.MarshalIndent(s, "", "  ")
}
