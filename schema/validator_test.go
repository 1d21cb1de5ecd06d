package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjones3/event-governance-poc-sub000/contracts"
)

// staticSource serves a fixed schema without touching a registry.
type staticSource struct {
	schema *contracts.Schema
	err    error
}

func (s *staticSource) Get(ctx context.Context, subject string) (*contracts.Schema, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.schema, nil
}

func bloodOrderSchema() *contracts.Schema {
	return &contracts.Schema{
		Subject: "BloodOrderCreated",
		Version: 3,
		Fields: map[string]contracts.FieldDef{
			"orderNumber":  {Type: contracts.TypeLong, Required: true},
			"locationCode": {Type: contracts.TypeString, Required: true},
			"orderItems": {
				Type:     contracts.TypeList,
				Required: true,
				Items: &contracts.FieldDef{
					Type: contracts.TypeRecord,
					Fields: map[string]contracts.FieldDef{
						"bloodType": {Type: contracts.TypeString, Required: true},
						"quantity":  {Type: contracts.TypeLong, Required: true},
					},
				},
			},
			"priority": {Type: contracts.TypeString},
		},
	}
}

func newTestValidator(sch *contracts.Schema, options ...ValidatorOption) *Validator {
	return NewValidator(&staticSource{schema: sch}, options...)
}

func TestValidateRequiredFields(t *testing.T) {
	t.Run("missing required field short-circuits with field name", func(t *testing.T) {
		// The concrete integration-bug shape: the caller populated facility
		// and blood data but never the required locationCode.
		v := newTestValidator(bloodOrderSchema())
		event := contracts.CandidateEvent{
			"orderNumber": contracts.Long(12345),
			"facilityId":  contracts.String("FAC-001"),
			"bloodType":   contracts.String("O_NEGATIVE"),
			"quantity":    contracts.Long(2),
		}

		result, err := v.Validate(context.Background(), "BloodOrderCreated", event)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Reason, "locationCode")
		assert.Contains(t, result.Reason, "required but was missing/null")
	})

	t.Run("required field present but null fails", func(t *testing.T) {
		v := newTestValidator(bloodOrderSchema())
		event := validBloodOrder()
		event["locationCode"] = contracts.Null()

		result, err := v.Validate(context.Background(), "BloodOrderCreated", event)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Reason, "Field 'locationCode' is required but was missing/null")
	})

	t.Run("nested required field failure carries full path", func(t *testing.T) {
		v := newTestValidator(bloodOrderSchema())
		event := validBloodOrder()
		event["orderItems"] = contracts.List(contracts.Record(map[string]contracts.Value{
			"bloodType": contracts.String("O_NEGATIVE"),
			// quantity missing
		}))

		result, err := v.Validate(context.Background(), "BloodOrderCreated", event)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Reason, "orderItems[0].quantity")
	})
}

func TestValidateTypes(t *testing.T) {
	t.Run("type mismatch names expected and actual types", func(t *testing.T) {
		v := newTestValidator(bloodOrderSchema())
		event := validBloodOrder()
		event["orderNumber"] = contracts.String("12345")

		result, err := v.Validate(context.Background(), "BloodOrderCreated", event)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Equal(t, "Type mismatch for field 'orderNumber': expected long, got string", result.Reason)
	})

	t.Run("array element mismatch includes element index", func(t *testing.T) {
		v := newTestValidator(bloodOrderSchema())
		event := validBloodOrder()
		event["orderItems"] = contracts.List(
			contracts.Record(map[string]contracts.Value{
				"bloodType": contracts.String("A_POSITIVE"),
				"quantity":  contracts.Long(1),
			}),
			contracts.String("not a record"),
		)

		result, err := v.Validate(context.Background(), "BloodOrderCreated", event)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Reason, "orderItems[1]")
		assert.Contains(t, result.Reason, "expected record, got string")
	})

	t.Run("long widens to double", func(t *testing.T) {
		sch := &contracts.Schema{
			Subject: "Measurement",
			Fields: map[string]contracts.FieldDef{
				"reading": {Type: contracts.TypeDouble, Required: true},
			},
		}
		v := newTestValidator(sch)

		result, err := v.Validate(context.Background(), "Measurement", contracts.CandidateEvent{
			"reading": contracts.Long(7),
		})
		require.NoError(t, err)
		assert.True(t, result.Valid)
	})
}

func TestValidateUnknownFields(t *testing.T) {
	t.Run("strict mode rejects undeclared fields", func(t *testing.T) {
		v := newTestValidator(bloodOrderSchema())
		event := validBloodOrder()
		event["shippingNotes"] = contracts.String("keep cold")

		result, err := v.Validate(context.Background(), "BloodOrderCreated", event)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Equal(t, "Unknown field 'shippingNotes'", result.Reason)
	})

	t.Run("permissive mode downgrades to warning", func(t *testing.T) {
		v := newTestValidator(bloodOrderSchema(), WithUnknownFieldPolicy(UnknownFieldPermissive))
		event := validBloodOrder()
		event["shippingNotes"] = contracts.String("keep cold")

		result, err := v.Validate(context.Background(), "BloodOrderCreated", event)
		require.NoError(t, err)
		assert.True(t, result.Valid)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "shippingNotes")
	})
}

func TestValidateSuccess(t *testing.T) {
	t.Run("valid event passes and is idempotent", func(t *testing.T) {
		v := newTestValidator(bloodOrderSchema())
		event := validBloodOrder()

		first, err := v.Validate(context.Background(), "BloodOrderCreated", event)
		require.NoError(t, err)
		assert.True(t, first.Valid)
		assert.Empty(t, first.Reason)

		second, err := v.Validate(context.Background(), "BloodOrderCreated", event)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("absent optional field is valid", func(t *testing.T) {
		v := newTestValidator(bloodOrderSchema())
		event := validBloodOrder()
		delete(event, "priority")

		result, err := v.Validate(context.Background(), "BloodOrderCreated", event)
		require.NoError(t, err)
		assert.True(t, result.Valid)
	})

	t.Run("null optional field is valid", func(t *testing.T) {
		v := newTestValidator(bloodOrderSchema())
		event := validBloodOrder()
		event["priority"] = contracts.Null()

		result, err := v.Validate(context.Background(), "BloodOrderCreated", event)
		require.NoError(t, err)
		assert.True(t, result.Valid)
	})
}

func TestValidateSchemaResolutionFailure(t *testing.T) {
	v := NewValidator(&staticSource{err: contracts.ErrRegistryUnavailable})

	_, err := v.Validate(context.Background(), "BloodOrderCreated", validBloodOrder())
	assert.ErrorIs(t, err, contracts.ErrRegistryUnavailable)
}

func validBloodOrder() contracts.CandidateEvent {
	return contracts.CandidateEvent{
		"orderNumber":  contracts.Long(12345),
		"locationCode": contracts.String("LOC-77"),
		"priority":     contracts.String("STAT"),
		"orderItems": contracts.List(contracts.Record(map[string]contracts.Value{
			"bloodType": contracts.String("O_NEGATIVE"),
			"quantity":  contracts.Long(2),
		})),
	}
}

func BenchmarkValidate(b *testing.B) {
	v := newTestValidator(bloodOrderSchema())
	event := validBloodOrder()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v.Validate(ctx, "BloodOrderCreated", event)
	}
}
