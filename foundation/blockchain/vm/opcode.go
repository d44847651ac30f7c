package vm

// Opcode is one instruction of the contract bytecode.
type Opcode byte

// Instruction set. PUSH carries an 8 byte big-endian immediate; everything
// else operates on the stack.
const (
	OpStop Opcode = 0x00
	OpPush Opcode = 0x01
	OpPop  Opcode = 0x02
	OpDup  Opcode = 0x03
	OpSwap Opcode = 0x04

	OpAdd Opcode = 0x10
	OpSub Opcode = 0x11
	OpMul Opcode = 0x12
	OpDiv Opcode = 0x13
	OpMod Opcode = 0x14

	OpEq     Opcode = 0x20
	OpLt     Opcode = 0x21
	OpGt     Opcode = 0x22
	OpIsZero Opcode = 0x23

	OpJump     Opcode = 0x30
	OpJumpI    Opcode = 0x31
	OpJumpDest Opcode = 0x32

	OpSLoad  Opcode = 0x40
	OpSStore Opcode = 0x41

	OpCaller       Opcode = 0x50
	OpCallValue    Opcode = 0x51
	OpCallDataSize Opcode = 0x52
	OpCallDataLoad Opcode = 0x53

	OpLog Opcode = 0x60

	OpRetVal  Opcode = 0x70 // Return the top stack word.
	OpRetCode Opcode = 0x71 // Return a slice of the executing code; used by constructors.
	OpRevert  Opcode = 0x72
)

// gasCosts is the per-instruction gas schedule. Storage writes dominate by
// design since they are the only cost that persists.
var gasCosts = map[Opcode]uint64{
	OpStop:         0,
	OpPush:         3,
	OpPop:          2,
	OpDup:          3,
	OpSwap:         3,
	OpAdd:          3,
	OpSub:          3,
	OpMul:          5,
	OpDiv:          5,
	OpMod:          5,
	OpEq:           3,
	OpLt:           3,
	OpGt:           3,
	OpIsZero:       3,
	OpJump:         8,
	OpJumpI:        10,
	OpJumpDest:     1,
	OpSLoad:        200,
	OpSStore:       5000,
	OpCaller:       2,
	OpCallValue:    2,
	OpCallDataSize: 2,
	OpCallDataLoad: 3,
	OpLog:          375,
	OpRetVal:       0,
	OpRetCode:      0,
	OpRevert:       0,
}
