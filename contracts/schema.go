package contracts

// FieldType declares the expected type of a schema field.
type FieldType int

const (
	TypeBool FieldType = iota
	TypeLong
	TypeDouble
	TypeString
	TypeRecord
	TypeList
)

func (t FieldType) String() string {
	switch t {
	case TypeBool:
		return "boolean"
	case TypeLong:
		return "long"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeRecord:
		return "record"
	case TypeList:
		return "array"
	default:
		return "unknown"
	}
}

// CompatibilityMode describes how new schema versions may evolve.
type CompatibilityMode string

const (
	CompatibilityBackward CompatibilityMode = "BACKWARD"
	CompatibilityForward  CompatibilityMode = "FORWARD"
	CompatibilityFull     CompatibilityMode = "FULL"
	CompatibilityNone     CompatibilityMode = "NONE"
)

// FieldDef defines validation rules for a single schema field.
type FieldDef struct {
	Type     FieldType           `json:"type"`
	Required bool                `json:"required"`
	Default  *Value              `json:"default,omitempty"`
	Fields   map[string]FieldDef `json:"fields,omitempty"` // nested record fields
	Items    *FieldDef           `json:"items,omitempty"`  // array element definition
}

// Schema is the structural definition registered for a subject. Immutable
// once registered; a new version is a new Schema instance for the same
// subject.
type Schema struct {
	Subject       string              `json:"subject"`
	Version       int                 `json:"version"`
	Compatibility CompatibilityMode   `json:"compatibility"`
	Fields        map[string]FieldDef `json:"fields"`
}
