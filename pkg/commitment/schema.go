package commitment

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// declarationSchemaJSON is the structural contract a declaration must meet
// before it may enter the gate, enforced in addition to the field-level
// checks in Validate. Keeping it as a JSON Schema means the same contract
// can be published to out-of-process declarers.
const declarationSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["declaration_id", "declaring_identity", "scope", "capability_refs"],
  "properties": {
    "declaration_id": {"type": "string", "minLength": 1},
    "declaring_identity": {"type": "string", "minLength": 1},
    "scope": {
      "type": "object",
      "required": ["effect_domain", "targets"],
      "properties": {
        "effect_domain": {
          "type": "string",
          "enum": ["communication", "data", "computation", "finance", "governance", "infrastructure", "physical", ""]
        },
        "targets": {"type": ["array", "null"], "items": {"type": "string"}},
        "constraints": {"type": "array", "items": {"type": "string"}}
      }
    },
    "capability_refs": {"type": ["array", "null"], "items": {"type": "string", "minLength": 1}},
    "intent_parent": {"type": "string"},
    "affected_parties": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "evidence_refs": {"type": "array", "items": {"type": "string"}}
  }
}`

var declarationSchema = jsonschema.MustCompileString("declaration.schema.json", declarationSchemaJSON)

// ValidateSchema checks a declaration against the published JSON Schema.
func ValidateSchema(d *Declaration) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("%w: declaration not serializable: %v", ErrStructuralInvalid, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: declaration not decodable: %v", ErrStructuralInvalid, err)
	}
	if err := declarationSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrStructuralInvalid, err)
	}
	return nil
}
