package validator

import (
	"reflect"
	"sync"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/vm"
	"github.com/go-playground/validator/v10"
)

// Validator returns the shared validator of JSON-RPC params. Felts and transaction types are
// compared through their string form, so tags such as `required_if=Version 0x3` or
// `required_if=Type DECLARE` work on them.
var Validator = sync.OnceValue(func() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(feltString, felt.Felt{}, &felt.Felt{})
	v.RegisterCustomTypeFunc(transactionTypeString, vm.TransactionType(0))
	return v
})

func feltString(field reflect.Value) any {
	switch f := field.Interface().(type) {
	case felt.Felt:
		return f.String()
	case *felt.Felt:
		if f != nil {
			return f.String()
		}
		return ""
	}
	panic("not a felt: " + field.Type().String())
}

// Invalid reads as unset so `required` rejects it.
func transactionTypeString(field reflect.Value) any {
	if t := field.Interface().(vm.TransactionType); t != vm.Invalid {
		return t.String()
	}
	return ""
}
