package vm

import (
	"encoding/binary"
	"fmt"
)

// Verify checks that every instruction of c and its nested blocks decodes
// and that its operands refer to entries that exist: literals, constant
// names, call sites, blocks, registers and jump targets. The interpreter
// trusts these, so code from outside the compiler must pass Verify
// before it runs.
func (c *Code) Verify() error {
	return verify(c, nil)
}

// verify checks c, where outers lists the enclosing bodies innermost
// first.
func verify(c *Code, outers []*Code) error {
	for k, s := range c.CallSites {
		if s == nil {
			return fmt.Errorf("%s: site %d is missing", c.Name, k)
		}
		if s.Argc < 0 || (s.SplatMap != nil && len(s.SplatMap) != s.Argc) {
			return fmt.Errorf("%s: site %d has %d splat flags for %d arguments", c.Name, k, len(s.SplatMap), s.Argc)
		}
	}

	home := c
	if len(outers) > 0 {
		home = outers[len(outers)-1]
	}
	bc := c.Bytecode
	starts := make(map[int]bool)
	jumps := make(map[int]int) // instruction position -> target
	for pos := 0; pos < len(bc); {
		starts[pos] = true
		op := Opcode(bc[pos])
		info, ok := opcodeTable[op]
		if !ok {
			return fmt.Errorf("%s: unknown opcode %02X at %04d", c.Name, byte(op), pos)
		}
		end := pos + 1 + info.OperandBytes
		if end > len(bc) {
			return fmt.Errorf("%s: %s at %04d is truncated", c.Name, info.Name, pos)
		}
		operands := bc[pos+1 : end]
		u16 := func(at int) int { return int(binary.LittleEndian.Uint16(operands[at:])) }
		target := func() int { return end + int(int16(binary.LittleEndian.Uint16(operands[len(operands)-2:]))) }

		var err error
		switch op {
		case OpPushLiteral:
			if idx := u16(0); idx >= len(c.Literals) {
				err = fmt.Errorf("literal %d of %d", idx, len(c.Literals))
			}
		case OpPushConst:
			if idx := u16(0); idx >= len(c.Literals) {
				err = fmt.Errorf("constant literal %d of %d", idx, len(c.Literals))
			} else if _, ok := c.Literals[idx].(Symbol); !ok {
				err = fmt.Errorf("constant literal %d is %s, not a Symbol", idx, Inspect(c.Literals[idx]))
			}
		case OpMakeBlock:
			if idx := u16(0); idx >= len(c.Blocks) {
				err = fmt.Errorf("block %d of %d", idx, len(c.Blocks))
			}
		case OpPushReg, OpStoreReg:
			if idx := int(operands[0]); idx >= frameRegs(c) {
				err = fmt.Errorf("register %d of %d", idx, frameRegs(c))
			}
		case OpPushOuter, OpStoreOuter:
			depth, idx := int(operands[0]), int(operands[1])
			if depth < 1 || depth > len(outers) {
				err = fmt.Errorf("outer depth %d with %d enclosing bodies", depth, len(outers))
			} else if n := frameRegs(outers[depth-1]); idx >= n {
				err = fmt.Errorf("outer register %d of %d", idx, n)
			}
		case OpPushHomeArgs:
			if n := int(operands[0]); n > frameRegs(home) {
				err = fmt.Errorf("%d home arguments of %d registers", n, frameRegs(home))
			}
		case OpInvokeOther, OpInvokeSelf, OpInvokeArrayDeref, OpInvokeAsString, OpInvokeSuper, OpInvokeEQQ,
			OpGuardFixnum, OpGuardFloat:
			if idx := u16(0); idx >= len(c.CallSites) {
				err = fmt.Errorf("site %d of %d", idx, len(c.CallSites))
			}
		}
		switch op {
		case OpJump, OpJumpTrue, OpJumpFalse, OpGuardFixnum, OpGuardFloat, OpFixnumOp, OpFloatOp:
			jumps[pos] = target()
		}
		if err != nil {
			return fmt.Errorf("%s: %s at %04d: %w", c.Name, info.Name, pos, err)
		}
		pos = end
	}
	starts[len(bc)] = true
	for pos, t := range jumps {
		if !starts[t] {
			return fmt.Errorf("%s: %s at %04d jumps to %04d, not an instruction", c.Name, Opcode(bc[pos]), pos, t)
		}
	}

	inner := append([]*Code{c}, outers...)
	for _, b := range c.Blocks {
		if b == nil {
			return fmt.Errorf("%s: missing block", c.Name)
		}
		if err := verify(b, inner); err != nil {
			return err
		}
	}
	return nil
}
