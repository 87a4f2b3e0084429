package cart

import (
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// Schema returns the JSON Schema of the persisted cart document.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == decimalType {
				// decimal.Decimal reads numbers and numeric strings; it writes strings.
				return &jsonschema.Schema{
					OneOf: []*jsonschema.Schema{
						{Type: "string", Pattern: `^-?[0-9]+(\.[0-9]+)?$`},
						{Type: "number"},
					},
				}
			}
			return nil
		},
	}
	s := r.Reflect(&State{})
	s.Title = "Persisted cart"
	return s
}
