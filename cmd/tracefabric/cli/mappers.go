package cli

import (
	"reflect"

	"github.com/alecthomas/kong"

	"github.com/frobware/go-tracefabric"
)

// modeMapper creates a Kong mapper for tracefabric.Mode.
func modeMapper() kong.MapperFunc {
	return func(ctx *kong.DecodeContext, target reflect.Value) error {
		var s string
		if err := ctx.Scan.PopValueInto("mode", &s); err != nil {
			return err
		}
		m, err := tracefabric.ParseMode(s)
		if err != nil {
			return err
		}
		target.Set(reflect.ValueOf(m))
		return nil
	}
}

// addressMapper creates a Kong mapper for Address.
func addressMapper() kong.MapperFunc {
	return func(ctx *kong.DecodeContext, target reflect.Value) error {
		var s string
		if err := ctx.Scan.PopValueInto("address", &s); err != nil {
			return err
		}
		a, err := ParseAddress(s)
		if err != nil {
			return err
		}
		target.Set(reflect.ValueOf(a))
		return nil
	}
}

// deviceIDMapper creates a Kong mapper for tracefabric.DeviceID.
func deviceIDMapper() kong.MapperFunc {
	return func(ctx *kong.DecodeContext, target reflect.Value) error {
		var s string
		if err := ctx.Scan.PopValueInto("device", &s); err != nil {
			return err
		}
		id, err := ParseDeviceID(s)
		if err != nil {
			return err
		}
		target.Set(reflect.ValueOf(id))
		return nil
	}
}
