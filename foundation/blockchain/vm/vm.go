// Package vm implements the embedded bytecode interpreter that executes
// contract init code and calls. It is a small stack machine over 64 bit
// words with per-instruction gas metering. Contract storage is accessed
// through an interface so execution effects stay inside the caller's state
// delta until committed.
package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Word size of stack values and immediates.
const wordSize = 8

// maxSteps bounds runaway programs that a gas limit alone would take a long
// time to stop.
const maxSteps = 1 << 20

// Storage represents the contract storage slots visible to the executing
// program.
type Storage interface {
	Get(slot uint64) uint64
	Set(slot uint64, value uint64)
}

// Context carries the call environment into the interpreter.
type Context struct {
	Caller   uint64 // Caller address condensed to a word.
	Value    uint64 // Token amount sent with the call, in word range.
	Input    []byte // Call data or constructor args.
	GasLimit uint64 // Gas budget for execution only, intrinsic gas excluded.
}

// Event is a log entry emitted by the LOG instruction.
type Event struct {
	Data []byte
}

// Result carries the outcome of one execution.
type Result struct {
	Ret      []byte
	GasUsed  uint64
	Events   []Event
	Reverted bool
	Err      error
}

// Set of execution failures. Out of gas and stack faults consume the whole
// gas budget; an explicit REVERT keeps state out but charges only the gas
// actually spent.
var (
	ErrOutOfGas      = errors.New("out of gas")
	ErrStackOverflow = errors.New("stack overflow")
	ErrStackUnder    = errors.New("stack underflow")
	ErrBadJump       = errors.New("jump to invalid destination")
	ErrBadOpcode     = errors.New("invalid opcode")
	ErrReverted      = errors.New("execution reverted")
)

// =============================================================================

// Run executes the bytecode against the context and storage. It never
// panics on malformed bytecode; every fault is reported in the Result.
func Run(code []byte, ctx Context, store Storage) Result {
	m := machine{
		code:  code,
		ctx:   ctx,
		store: store,
	}

	return m.run()
}

// =============================================================================

type machine struct {
	code    []byte
	ctx     Context
	store   Storage
	stack   []uint64
	pc      int
	gasUsed uint64
	events  []Event
	retData []byte
}

func (m *machine) run() Result {
	for steps := 0; ; steps++ {
		if steps >= maxSteps {
			return m.fault(fmt.Errorf("%w: step budget exhausted", ErrOutOfGas))
		}
		if m.pc >= len(m.code) {
			// Falling off the end behaves like STOP.
			return m.done(nil)
		}

		op := Opcode(m.code[m.pc])
		cost, exists := gasCosts[op]
		if !exists {
			return m.fault(fmt.Errorf("%w: 0x%02x at pc %d", ErrBadOpcode, byte(op), m.pc))
		}

		m.gasUsed += cost
		if m.gasUsed > m.ctx.GasLimit {
			return m.fault(ErrOutOfGas)
		}

		if err := m.step(op); err != nil {
			if errors.Is(err, ErrReverted) {
				return Result{GasUsed: m.gasUsed, Reverted: true, Err: err}
			}
			return m.fault(err)
		}

		if len(m.stack) > maxStackDepth {
			return m.fault(ErrStackOverflow)
		}

		if op == OpStop {
			return m.done(nil)
		}
		if op == OpRetVal || op == OpRetCode {
			return m.done(m.retData)
		}
	}
}

func (m *machine) step(op Opcode) error {
	switch op {
	case OpStop, OpJumpDest:
		m.pc++
		return nil

	case OpPush:
		if m.pc+1+wordSize > len(m.code) {
			return fmt.Errorf("%w: truncated push at pc %d", ErrBadOpcode, m.pc)
		}
		m.push(binary.BigEndian.Uint64(m.code[m.pc+1 : m.pc+1+wordSize]))
		m.pc += 1 + wordSize
		return nil

	case OpPop:
		_, err := m.pop()
		m.pc++
		return err

	case OpDup:
		v, err := m.peek()
		if err != nil {
			return err
		}
		m.push(v)
		m.pc++
		return nil

	case OpSwap:
		if len(m.stack) < 2 {
			return ErrStackUnder
		}
		l := len(m.stack)
		m.stack[l-1], m.stack[l-2] = m.stack[l-2], m.stack[l-1]
		m.pc++
		return nil

	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpEq, OpLt, OpGt:
		return m.binary(op)

	case OpIsZero:
		v, err := m.pop()
		if err != nil {
			return err
		}
		m.push(boolWord(v == 0))
		m.pc++
		return nil

	case OpJump:
		dest, err := m.pop()
		if err != nil {
			return err
		}
		return m.jump(dest)

	case OpJumpI:
		dest, err := m.pop()
		if err != nil {
			return err
		}
		cond, err := m.pop()
		if err != nil {
			return err
		}
		if cond == 0 {
			m.pc++
			return nil
		}
		return m.jump(dest)

	case OpSLoad:
		slot, err := m.pop()
		if err != nil {
			return err
		}
		m.push(m.store.Get(slot))
		m.pc++
		return nil

	case OpSStore:
		slot, err := m.pop()
		if err != nil {
			return err
		}
		value, err := m.pop()
		if err != nil {
			return err
		}
		m.store.Set(slot, value)
		m.pc++
		return nil

	case OpCaller:
		m.push(m.ctx.Caller)
		m.pc++
		return nil

	case OpCallValue:
		m.push(m.ctx.Value)
		m.pc++
		return nil

	case OpCallDataSize:
		m.push(uint64(len(m.ctx.Input)))
		m.pc++
		return nil

	case OpCallDataLoad:
		offset, err := m.pop()
		if err != nil {
			return err
		}
		m.push(loadWord(m.ctx.Input, offset))
		m.pc++
		return nil

	case OpLog:
		v, err := m.pop()
		if err != nil {
			return err
		}
		data := make([]byte, wordSize)
		binary.BigEndian.PutUint64(data, v)
		m.events = append(m.events, Event{Data: data})
		m.pc++
		return nil

	case OpRetVal:
		v, err := m.pop()
		if err != nil {
			return err
		}
		data := make([]byte, wordSize)
		binary.BigEndian.PutUint64(data, v)
		m.retData = data
		return nil

	case OpRetCode:
		offset, err := m.pop()
		if err != nil {
			return err
		}
		length, err := m.pop()
		if err != nil {
			return err
		}
		end := offset + length
		if end < offset || end > uint64(len(m.code)) {
			return fmt.Errorf("%w: return code range [%d,%d)", ErrBadOpcode, offset, end)
		}
		m.retData = append([]byte{}, m.code[offset:end]...)
		return nil

	case OpRevert:
		return ErrReverted

	default:
		return fmt.Errorf("%w: 0x%02x", ErrBadOpcode, byte(op))
	}
}

func (m *machine) binary(op Opcode) error {
	b, err := m.pop()
	if err != nil {
		return err
	}
	a, err := m.pop()
	if err != nil {
		return err
	}

	switch op {
	case OpAdd:
		m.push(a + b)
	case OpSub:
		m.push(a - b)
	case OpMul:
		m.push(a * b)
	case OpDiv:
		if b == 0 {
			m.push(0)
		} else {
			m.push(a / b)
		}
	case OpMod:
		if b == 0 {
			m.push(0)
		} else {
			m.push(a % b)
		}
	case OpEq:
		m.push(boolWord(a == b))
	case OpLt:
		m.push(boolWord(a < b))
	case OpGt:
		m.push(boolWord(a > b))
	}

	m.pc++
	return nil
}

func (m *machine) jump(dest uint64) error {
	if dest >= uint64(len(m.code)) || Opcode(m.code[dest]) != OpJumpDest {
		return fmt.Errorf("%w: %d", ErrBadJump, dest)
	}
	m.pc = int(dest) + 1
	return nil
}

// =============================================================================

const maxStackDepth = 256

func (m *machine) push(v uint64) {
	m.stack = append(m.stack, v)
}

func (m *machine) pop() (uint64, error) {
	if len(m.stack) == 0 {
		return 0, ErrStackUnder
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *machine) peek() (uint64, error) {
	if len(m.stack) == 0 {
		return 0, ErrStackUnder
	}
	return m.stack[len(m.stack)-1], nil
}

func (m *machine) done(ret []byte) Result {
	return Result{
		Ret:     ret,
		GasUsed: m.gasUsed,
		Events:  m.events,
	}
}

// fault consumes the whole gas budget: malformed programs pay for the
// block space they wasted.
func (m *machine) fault(err error) Result {
	return Result{
		GasUsed: m.ctx.GasLimit,
		Err:     err,
	}
}

func boolWord(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// loadWord reads a big-endian word at the offset, zero padded past the end
// of the input.
func loadWord(input []byte, offset uint64) uint64 {
	var buf [wordSize]byte
	for i := 0; i < wordSize; i++ {
		idx := offset + uint64(i)
		if idx < uint64(len(input)) {
			buf[i] = input[idx]
		}
	}
	return binary.BigEndian.Uint64(buf[:])
}
