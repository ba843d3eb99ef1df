package manager

import (
	"fmt"
	"math/bits"

	"github.com/vk/layoutgrid/internal/keydef"
	"github.com/vk/layoutgrid/internal/layout"
)

// API modes.
const (
	ModeSet = 1
	ModeGet = 2
)

// Consolidation descriptor bit flags, three orthogonal axes combined into
// one integer. Direction selects where values travel, Operation what
// happens at the named targets (SET mode only), Consolidation how values
// are combined into the entities reached through the structure.
const (
	DirectionNone = 0x00000001
	DirectionSave = 0x00000002
	DirectionUp   = 0x00000004
	DirectionDown = 0x00000008

	OperationSet = 0x00000010
	OperationSum = 0x00000020

	ConsolidationSum  = 0x00000100
	ConsolidationMean = 0x00000200
	ConsolidationSet  = 0x00000400
)

const (
	directionMask     = DirectionNone | DirectionSave | DirectionUp | DirectionDown
	operationMask     = OperationSet | OperationSum
	consolidationMask = ConsolidationSum | ConsolidationMean | ConsolidationSet
)

// validateFlags enforces the descriptor validity rules before any work is
// attempted:
//   - GET never carries operation flags.
//   - SET carries exactly one operation flag.
//   - exactly one direction flag is set.
//   - NONE/SAVE forbid a consolidation axis, UP/DOWN require exactly one.
//   - layouts without a relational structure force direction to NONE/SAVE.
//   - SUM/MEAN consolidation and the SUM operation require a numeric key.
func validateFlags(mode int, l *layout.Layout, def *keydef.KeyDef, flags int) error {
	dir := flags & directionMask
	op := flags & operationMask
	cons := flags & consolidationMask

	if bits.OnesCount32(uint32(dir)) != 1 {
		return fmt.Errorf("layouts: exactly one direction flag required, got %#x", dir)
	}
	if bits.OnesCount32(uint32(cons)) > 1 {
		return fmt.Errorf("layouts: at most one consolidation flag allowed, got %#x", cons)
	}

	switch mode {
	case ModeGet:
		if op != 0 {
			return fmt.Errorf("layouts: GET cannot carry operation flags %#x", op)
		}
	case ModeSet:
		if bits.OnesCount32(uint32(op)) != 1 {
			return fmt.Errorf("layouts: SET requires exactly one operation flag, got %#x", op)
		}
	default:
		return fmt.Errorf("layouts: unknown API mode %d", mode)
	}

	relational := dir == DirectionUp || dir == DirectionDown
	if relational && l.Kind != layout.KindTree {
		return fmt.Errorf("layouts: layout '%s' has no relational structure", l.Type)
	}
	if relational && cons == 0 {
		return fmt.Errorf("layouts: direction UP/DOWN requires a consolidation flag")
	}
	if !relational && cons != 0 {
		return fmt.Errorf("layouts: consolidation flag %#x requires direction UP/DOWN", cons)
	}

	needsArithmetic := cons == ConsolidationSum || cons == ConsolidationMean ||
		op == OperationSum
	if needsArithmetic && !def.Type.Numeric() {
		return fmt.Errorf("layouts: key '%s' (%s) does not support numeric consolidation",
			def.Key, def.Type)
	}
	return nil
}
