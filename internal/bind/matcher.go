package bind

import "github.com/specialistvlad/devmgr/internal/props"

// Matches evaluates a validated program against a property set.
func Matches(p Program, set *props.Set) bool {
	if len(p) == 0 {
		return false
	}
	return allOf(p, set)
}

func allOf(seq []Instruction, set *props.Set) bool {
	for _, in := range seq {
		if in.Op == OpAlways {
			return true
		}
		if !eval(in, set) {
			return false
		}
	}
	return true
}

func anyOf(seq []Instruction, set *props.Set) bool {
	for _, in := range seq {
		if in.Op == OpAlways || eval(in, set) {
			return true
		}
	}
	return false
}

func eval(in Instruction, set *props.Set) bool {
	switch in.Op {
	case OpEqual:
		v, ok := set.Get(in.Key)
		return ok && v == in.Value
	case OpRange:
		v, ok := set.Get(in.Key)
		return ok && v >= in.Lo && v <= in.Hi
	case OpAll:
		return allOf(in.Group, set)
	case OpAny:
		return anyOf(in.Group, set)
	case OpAlways:
		return true
	}
	return false
}
