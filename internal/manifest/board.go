package manifest

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/devmgr/internal/ctxlog"
	"github.com/specialistvlad/devmgr/internal/node"
	"github.com/specialistvlad/devmgr/internal/props"
)

type boardFile struct {
	Devices []*deviceBlock `hcl:"device,block"`
	Remain  hcl.Body       `hcl:",remain"`
}

type deviceBlock struct {
	Name     string         `hcl:"name,label"`
	Parent   string         `hcl:"parent,optional"`
	Protocol *hcl.Attribute `hcl:"protocol,optional"`
	Props    *hcl.Attribute `hcl:"props,optional"`
	Bindable *bool          `hcl:"bindable,optional"`
	Instance bool           `hcl:"instance,optional"`
	BusDev   *busDevBlock   `hcl:"busdev,block"`
}

type busDevBlock struct {
	Driver string `hcl:"driver"`
	Args   string `hcl:"args,optional"`
}

// Device is a boot-time device from the board file.
type Device struct {
	Name   string
	Parent string
	Args   node.Args
}

// LoadBoard parses the board file at path. Devices keep their declaration
// order, so a parent must be declared before its children.
func LoadBoard(ctx context.Context, path string) ([]Device, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	var root boardFile
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	ectx := evalContext()
	out := make([]Device, 0, len(root.Devices))
	for _, blk := range root.Devices {
		dev, err := translateDevice(blk, ectx)
		if err != nil {
			return nil, fmt.Errorf("device %q in %s: %w", blk.Name, path, err)
		}
		out = append(out, dev)
	}
	ctxlog.FromContext(ctx).Debug("Loaded board file.", "file", path, "devices", len(out))
	return out, nil
}

func translateDevice(blk *deviceBlock, ectx *hcl.EvalContext) (Device, error) {
	dev := Device{Name: blk.Name, Parent: blk.Parent}
	if dev.Parent == "" {
		dev.Parent = "root"
	}
	args := node.Args{Name: blk.Name}

	if blk.Protocol != nil {
		id, err := evalProtocol(blk.Protocol.Expr, ectx)
		if err != nil {
			return dev, err
		}
		args.ProtoID = id
	}
	if blk.Props != nil {
		ps, err := evalProps(blk.Props.Expr, ectx)
		if err != nil {
			return dev, err
		}
		args.Props = ps
	}
	if blk.Bindable != nil && !*blk.Bindable {
		args.Flags |= node.NonBindable
	}
	if blk.Instance {
		args.Flags |= node.Instance
	}
	if blk.BusDev != nil {
		args.Flags |= node.BusDev
		args.BusDriver = blk.BusDev.Driver
		args.BusDevArgs = blk.BusDev.Args
	}
	dev.Args = args
	return dev, nil
}

// evalProps turns an object such as { vid = "0x8086", did = 4110 } into
// properties sorted by key.
func evalProps(expr hcl.Expression, ectx *hcl.EvalContext) ([]props.Prop, error) {
	v, diags := expr.Value(ectx)
	if diags.HasErrors() {
		return nil, fmt.Errorf("props: %w", diags)
	}
	if v.IsNull() {
		return nil, nil
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("props: expected an object, got %s", v.Type().FriendlyName())
	}

	var out []props.Prop
	for it := v.ElementIterator(); it.Next(); {
		k, val := it.Element()
		name := k.AsString()
		key, ok := props.KeyByName(name)
		if !ok {
			return nil, fmt.Errorf("props: unknown property %q", name)
		}
		n, err := toUint32(val, "props."+name)
		if err != nil {
			return nil, err
		}
		out = append(out, props.Prop{Key: key, Value: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
