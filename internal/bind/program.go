package bind

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/devmgr/internal/props"
	"github.com/specialistvlad/devmgr/internal/status"
)

// MaxDepth bounds group nesting.
const MaxDepth = 8

// Opcode selects the behavior of an Instruction.
type Opcode uint8

const (
	OpInvalid Opcode = iota
	// OpEqual matches when Key is present and equals Value.
	OpEqual
	// OpRange matches when Key is present and Lo <= value <= Hi.
	OpRange
	// OpAll matches when every instruction in Group matches.
	OpAll
	// OpAny matches when at least one instruction in Group matches.
	OpAny
	// OpAlways ends its sequence with a match.
	OpAlways
)

var opNames = map[Opcode]string{
	OpEqual:  "equal",
	OpRange:  "range",
	OpAll:    "all",
	OpAny:    "any",
	OpAlways: "always",
}

func (op Opcode) String() string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// OpcodeByName resolves a manifest opcode name.
func OpcodeByName(name string) (Opcode, bool) {
	for op, n := range opNames {
		if n == name {
			return op, true
		}
	}
	return OpInvalid, false
}

// Instruction is one step of a binding program.
type Instruction struct {
	Op    Opcode
	Key   props.Key
	Value uint32
	Lo    uint32
	Hi    uint32
	Group []Instruction
}

// Program is an ordered sequence of instructions combined with AND.
type Program []Instruction

// Equal builds an OpEqual instruction.
func Equal(key props.Key, value uint32) Instruction {
	return Instruction{Op: OpEqual, Key: key, Value: value}
}

// Range builds an OpRange instruction.
func Range(key props.Key, lo, hi uint32) Instruction {
	return Instruction{Op: OpRange, Key: key, Lo: lo, Hi: hi}
}

// All builds an AND group.
func All(group ...Instruction) Instruction {
	return Instruction{Op: OpAll, Group: group}
}

// Any builds an OR group.
func Any(group ...Instruction) Instruction {
	return Instruction{Op: OpAny, Group: group}
}

// Always builds the match terminator.
func Always() Instruction {
	return Instruction{Op: OpAlways}
}

// Validate checks the program's structure. Every problem is reported as an
// error wrapping status.ErrInvalidProgram.
func (p Program) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("program is empty: %w", status.ErrInvalidProgram)
	}
	return validateSeq(p, "", 1)
}

func validateSeq(seq []Instruction, prefix string, depth int) error {
	if depth > MaxDepth {
		return fmt.Errorf("instruction %s: nesting deeper than %d: %w", strings.TrimSuffix(prefix, "."), MaxDepth, status.ErrInvalidProgram)
	}
	for i, in := range seq {
		at := fmt.Sprintf("%s%d", prefix, i)
		switch in.Op {
		case OpEqual:
			if !in.Key.Valid() {
				return fmt.Errorf("instruction %s: unknown key %s: %w", at, in.Key, status.ErrInvalidProgram)
			}
		case OpRange:
			if !in.Key.Valid() {
				return fmt.Errorf("instruction %s: unknown key %s: %w", at, in.Key, status.ErrInvalidProgram)
			}
			if in.Lo > in.Hi {
				return fmt.Errorf("instruction %s: range lo %d > hi %d: %w", at, in.Lo, in.Hi, status.ErrInvalidProgram)
			}
		case OpAll, OpAny:
			if len(in.Group) == 0 {
				return fmt.Errorf("instruction %s: empty %s group: %w", at, in.Op, status.ErrInvalidProgram)
			}
			if err := validateSeq(in.Group, at+".", depth+1); err != nil {
				return err
			}
		case OpAlways:
			if i != len(seq)-1 {
				return fmt.Errorf("instruction %s: unreachable instructions after always: %w", at, status.ErrInvalidProgram)
			}
		default:
			return fmt.Errorf("instruction %s: undefined opcode %d: %w", at, uint8(in.Op), status.ErrInvalidProgram)
		}
	}
	return nil
}

// String renders the program in manifest-like notation, for logs.
func (p Program) String() string {
	parts := make([]string, len(p))
	for i, in := range p {
		parts[i] = in.String()
	}
	return "[" + strings.Join(parts, " && ") + "]"
}

func (in Instruction) String() string {
	switch in.Op {
	case OpEqual:
		return fmt.Sprintf("%s == %d", in.Key, in.Value)
	case OpRange:
		return fmt.Sprintf("%s in %d..%d", in.Key, in.Lo, in.Hi)
	case OpAll, OpAny:
		sep := " && "
		if in.Op == OpAny {
			sep = " || "
		}
		parts := make([]string, len(in.Group))
		for i, g := range in.Group {
			parts[i] = g.String()
		}
		return "(" + strings.Join(parts, sep) + ")"
	case OpAlways:
		return "true"
	default:
		return in.Op.String()
	}
}
