package manifest

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/devmgr/internal/props"
	"github.com/specialistvlad/devmgr/internal/protocol"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// evalContext exposes the protocol table as the protocol object.
func evalContext() *hcl.EvalContext {
	protos := make(map[string]cty.Value)
	for name, id := range protocol.Table() {
		protos[name] = cty.NumberUIntVal(uint64(id))
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"protocol": cty.ObjectVal(protos),
		},
	}
}

func evalUint32(expr hcl.Expression, ectx *hcl.EvalContext, what string) (uint32, error) {
	v, diags := expr.Value(ectx)
	if diags.HasErrors() {
		return 0, fmt.Errorf("%s: %w", what, diags)
	}
	return toUint32(v, what)
}

func toUint32(v cty.Value, what string) (uint32, error) {
	if v.IsNull() || !v.IsKnown() {
		return 0, fmt.Errorf("%s: value is missing", what)
	}
	switch v.Type() {
	case cty.String:
		n, err := strconv.ParseUint(v.AsString(), 0, 32)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a 32-bit unsigned number", what, v.AsString())
		}
		return uint32(n), nil
	case cty.Number:
		var out uint32
		if err := gocty.FromCtyValue(v, &out); err != nil {
			return 0, fmt.Errorf("%s: %w", what, err)
		}
		return out, nil
	}
	return 0, fmt.Errorf("%s: expected a number, got %s", what, v.Type().FriendlyName())
}

// evalKey accepts a property key name or a numeric key.
func evalKey(expr hcl.Expression, ectx *hcl.EvalContext) (props.Key, error) {
	v, diags := expr.Value(ectx)
	if diags.HasErrors() {
		return props.KeyInvalid, fmt.Errorf("key: %w", diags)
	}
	if !v.IsNull() && v.Type() == cty.String {
		if k, ok := props.KeyByName(v.AsString()); ok {
			return k, nil
		}
		if _, err := strconv.ParseUint(v.AsString(), 0, 16); err != nil {
			return props.KeyInvalid, fmt.Errorf("key: unknown property %q", v.AsString())
		}
	}
	n, err := toUint32(v, "key")
	if err != nil {
		return props.KeyInvalid, err
	}
	if n > 0xffff {
		return props.KeyInvalid, fmt.Errorf("key: %d does not fit a property key", n)
	}
	return props.Key(n), nil
}

// evalProtocol accepts a protocol name or number.
func evalProtocol(expr hcl.Expression, ectx *hcl.EvalContext) (protocol.ID, error) {
	v, diags := expr.Value(ectx)
	if diags.HasErrors() {
		return protocol.None, fmt.Errorf("protocol: %w", diags)
	}
	if !v.IsNull() && v.Type() == cty.String {
		if id, ok := protocol.ByName(v.AsString()); ok {
			return id, nil
		}
	}
	n, err := toUint32(v, "protocol")
	return protocol.ID(n), err
}
