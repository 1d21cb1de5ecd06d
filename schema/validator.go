package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mjones3/event-governance-poc-sub000/contracts"
)

// UnknownFieldPolicy controls how fields absent from the schema are treated.
type UnknownFieldPolicy int

const (
	// UnknownFieldStrict rejects events carrying undeclared fields.
	UnknownFieldStrict UnknownFieldPolicy = iota
	// UnknownFieldPermissive reports undeclared fields as warnings only.
	UnknownFieldPermissive
)

// SchemaSource resolves a schema for a subject. *Cache implements it.
type SchemaSource interface {
	Get(ctx context.Context, subject string) (*contracts.Schema, error)
}

// Validator validates candidate events structurally against registered
// schemas. Validation is read-only and short-circuits on the first failure.
type Validator struct {
	schemas SchemaSource
	policy  UnknownFieldPolicy
	logger  *slog.Logger
}

// ValidatorOption configures the validator.
type ValidatorOption func(*Validator)

// WithUnknownFieldPolicy sets the policy for undeclared fields.
func WithUnknownFieldPolicy(policy UnknownFieldPolicy) ValidatorOption {
	return func(v *Validator) {
		v.policy = policy
	}
}

// WithValidatorLogger sets the logger.
func WithValidatorLogger(logger *slog.Logger) ValidatorOption {
	return func(v *Validator) {
		v.logger = logger
	}
}

// NewValidator creates a validator resolving schemas through source.
func NewValidator(source SchemaSource, options ...ValidatorOption) *Validator {
	v := &Validator{
		schemas: source,
		policy:  UnknownFieldStrict,
		logger:  slog.Default(),
	}

	for _, opt := range options {
		opt(v)
	}

	return v
}

// Validate checks event against the schema registered for subject. An invalid
// event yields Valid=false with a reason, never an error; the error return is
// reserved for schema resolution failures (registry unreachable, unknown
// subject), which callers treat as validation-phase failures.
func (v *Validator) Validate(ctx context.Context, subject string, event contracts.CandidateEvent) (contracts.ValidationResult, error) {
	sch, err := v.schemas.Get(ctx, subject)
	if err != nil {
		return contracts.ValidationResult{}, err
	}

	var warnings []string
	if reason := v.validateRecord("", sch.Fields, event, &warnings); reason != "" {
		return contracts.ValidationResult{Valid: false, Reason: reason, Warnings: warnings}, nil
	}

	return contracts.ValidationResult{Valid: true, Warnings: warnings}, nil
}

// validateRecord applies the validation phases in order: required presence,
// type compatibility, then unknown fields. The first failure wins. Field
// names are visited in sorted order so the reported reason is deterministic.
func (v *Validator) validateRecord(path string, fields map[string]contracts.FieldDef, data map[string]contracts.Value, warnings *[]string) string {
	names := sortedFieldNames(fields)

	for _, name := range names {
		def := fields[name]
		if !def.Required {
			continue
		}
		value, present := data[name]
		if !present || value.IsNull() {
			return fmt.Sprintf("Field '%s' is required but was missing/null", joinPath(path, name))
		}
	}

	for _, name := range names {
		def := fields[name]
		value, present := data[name]
		if !present || value.IsNull() {
			// Absent or null optional fields are always valid.
			continue
		}
		if reason := v.validateValue(joinPath(path, name), def, value, warnings); reason != "" {
			return reason
		}
	}

	for _, name := range sortedDataNames(data) {
		if _, declared := fields[name]; declared {
			continue
		}
		if v.policy == UnknownFieldStrict {
			return fmt.Sprintf("Unknown field '%s'", joinPath(path, name))
		}
		warning := fmt.Sprintf("Unknown field '%s'", joinPath(path, name))
		*warnings = append(*warnings, warning)
		v.logger.Warn("event carries undeclared field",
			"field", joinPath(path, name),
		)
	}

	return ""
}

func (v *Validator) validateValue(path string, def contracts.FieldDef, value contracts.Value, warnings *[]string) string {
	if !typeCompatible(def.Type, value.Kind()) {
		return fmt.Sprintf("Type mismatch for field '%s': expected %s, got %s", path, def.Type, value.Kind())
	}

	switch def.Type {
	case contracts.TypeRecord:
		if def.Fields != nil {
			return v.validateRecord(path, def.Fields, value.RecordVal(), warnings)
		}
	case contracts.TypeList:
		if def.Items == nil {
			return ""
		}
		for i, item := range value.ListVal() {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			if item.IsNull() {
				return fmt.Sprintf("Type mismatch for field '%s': expected %s, got null", itemPath, def.Items.Type)
			}
			if reason := v.validateValue(itemPath, *def.Items, item, warnings); reason != "" {
				return reason
			}
		}
	}

	return ""
}

// typeCompatible reports structural compatibility between a declared type and
// a runtime kind. Longs widen to double; nothing else coerces.
func typeCompatible(declared contracts.FieldType, actual contracts.Kind) bool {
	switch declared {
	case contracts.TypeBool:
		return actual == contracts.KindBool
	case contracts.TypeLong:
		return actual == contracts.KindLong
	case contracts.TypeDouble:
		return actual == contracts.KindDouble || actual == contracts.KindLong
	case contracts.TypeString:
		return actual == contracts.KindString
	case contracts.TypeRecord:
		return actual == contracts.KindRecord
	case contracts.TypeList:
		return actual == contracts.KindList
	default:
		return false
	}
}

func joinPath(parent, field string) string {
	if parent == "" {
		return field
	}
	return parent + "." + field
}

func sortedFieldNames(fields map[string]contracts.FieldDef) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedDataNames(data map[string]contracts.Value) []string {
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
