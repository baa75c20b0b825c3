package manifest

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/devmgr/internal/bind"
	"github.com/specialistvlad/devmgr/internal/ctxlog"
	"github.com/specialistvlad/devmgr/internal/fsutil"
	"github.com/specialistvlad/devmgr/internal/registry"
)

// driverFile decodes the top-level blocks of a driver manifest.
type driverFile struct {
	Drivers []*driverBlock `hcl:"driver,block"`
	Remain  hcl.Body       `hcl:",remain"`
}

type driverBlock struct {
	Name        string        `hcl:"name,label"`
	Description string        `hcl:"description,optional"`
	Flags       []string      `hcl:"flags,optional"`
	Match       []*matchBlock `hcl:"match,block"`
}

// matchBlock is one binding instruction. Groups nest further match blocks.
type matchBlock struct {
	Op    string         `hcl:"op,label"`
	Key   *hcl.Attribute `hcl:"key,optional"`
	Value *hcl.Attribute `hcl:"value,optional"`
	Lo    *hcl.Attribute `hcl:"lo,optional"`
	Hi    *hcl.Attribute `hcl:"hi,optional"`
	Match []*matchBlock  `hcl:"match,block"`
}

// LoadDrivers parses every .hcl file under paths and returns the driver
// definitions keyed by name. Programs are translated but not validated;
// registration and registry validation do that.
func LoadDrivers(ctx context.Context, paths ...string) (map[string]*registry.Definition, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.CollectFiles(".hcl", paths...)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered driver manifests.", "count", len(files))

	parser := hclparse.NewParser()
	ectx := evalContext()
	defs := make(map[string]*registry.Definition)

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		var root driverFile
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		for _, blk := range root.Drivers {
			if prev, ok := defs[blk.Name]; ok {
				return nil, fmt.Errorf("driver %q declared in both %s and %s", blk.Name, prev.Source, file)
			}
			def, err := translateDriver(blk, ectx, file)
			if err != nil {
				return nil, err
			}
			defs[def.Name] = def
			logger.Debug("Loaded driver manifest.", "driver", def.Name, "file", file, "program", def.Program.String())
		}
	}
	return defs, nil
}

func translateDriver(blk *driverBlock, ectx *hcl.EvalContext, file string) (*registry.Definition, error) {
	var flags registry.Flags
	for _, name := range blk.Flags {
		f, ok := registry.FlagsByName[name]
		if !ok {
			return nil, fmt.Errorf("driver %q in %s: unknown flag %q", blk.Name, file, name)
		}
		flags |= f
	}
	program, err := translateMatches(blk.Match, ectx)
	if err != nil {
		return nil, fmt.Errorf("driver %q in %s: %w", blk.Name, file, err)
	}
	return &registry.Definition{Name: blk.Name, Program: program, Flags: flags, Source: file}, nil
}

func translateMatches(blocks []*matchBlock, ectx *hcl.EvalContext) (bind.Program, error) {
	out := make(bind.Program, 0, len(blocks))
	for i, m := range blocks {
		in, err := translateMatch(m, ectx)
		if err != nil {
			return nil, fmt.Errorf("match %d (%s): %w", i, m.Op, err)
		}
		out = append(out, in)
	}
	return out, nil
}

// translateMatch maps a block to an instruction. Unknown opcode names yield
// an OpInvalid instruction so that validation reports them as an invalid
// program.
func translateMatch(m *matchBlock, ectx *hcl.EvalContext) (bind.Instruction, error) {
	op, ok := bind.OpcodeByName(m.Op)
	if !ok {
		return bind.Instruction{Op: bind.OpInvalid}, nil
	}
	in := bind.Instruction{Op: op}
	var err error

	switch op {
	case bind.OpEqual, bind.OpRange:
		if m.Key == nil {
			return in, fmt.Errorf("missing key")
		}
		if in.Key, err = evalKey(m.Key.Expr, ectx); err != nil {
			return in, err
		}
	}

	switch op {
	case bind.OpEqual:
		if m.Value == nil {
			return in, fmt.Errorf("missing value")
		}
		in.Value, err = evalUint32(m.Value.Expr, ectx, "value")
	case bind.OpRange:
		if m.Lo == nil || m.Hi == nil {
			return in, fmt.Errorf("range needs lo and hi")
		}
		if in.Lo, err = evalUint32(m.Lo.Expr, ectx, "lo"); err != nil {
			return in, err
		}
		in.Hi, err = evalUint32(m.Hi.Expr, ectx, "hi")
	case bind.OpAll, bind.OpAny:
		in.Group, err = translateMatches(m.Match, ectx)
	}
	return in, err
}
