package llm

// Schema describes the expected shape of a structured completion, mirroring
// the Gemini responseSchema format (OpenAPI-subset with uppercase type names).
type Schema struct {
	Type       string             `json:"type"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
	Enum       []string           `json:"enum,omitempty"`
	Required   []string           `json:"required,omitempty"`
}

// Gemini schema type names.
const (
	TypeObject  = "OBJECT"
	TypeString  = "STRING"
	TypeNumber  = "NUMBER"
	TypeInteger = "INTEGER"
	TypeBoolean = "BOOLEAN"
	TypeArray   = "ARRAY"
)

// ObjectSchema builds an OBJECT schema from property name/schema pairs.
func ObjectSchema(props map[string]*Schema) *Schema {
	return &Schema{Type: TypeObject, Properties: props}
}

// StringSchema returns a STRING schema.
func StringSchema() *Schema {
	return &Schema{Type: TypeString}
}
