package compiler

import (
	"fmt"

	"github.com/runelang/rune/diagnostics"
	"github.com/runelang/rune/opcodes"
)

// Label is a forward-referencable position inside one assembly. Labels
// are cheap tokens; the unit builder resolves them to signed offsets
// when the assembly is lowered.
type Label struct {
	Name string
	ID   int
}

func (l Label) String() string {
	return fmt.Sprintf("%s_%d", l.Name, l.ID)
}

type assemblyInst struct {
	inst     opcodes.Instruction
	label    Label
	hasLabel bool
	location diagnostics.Location
}

// Assembly is the per-function buffer of label-relative instructions
// the compiler frontend emits, consumed by the unit builder.
type Assembly struct {
	location diagnostics.Location

	labelCount int
	labels     map[Label]int
	// labelsRev keeps the first label bound at each position; extra
	// labels at the same position are preserved as comments.
	labelsRev   map[int]Label
	extraLabels map[int][]Label

	instructions []assemblyInst
	comments     map[int][]string
}

// NewAssembly starts an empty assembly attributed to the given
// location.
func NewAssembly(location diagnostics.Location) *Assembly {
	return &Assembly{
		location:    location,
		labels:      make(map[Label]int),
		labelsRev:   make(map[int]Label),
		extraLabels: make(map[int][]Label),
		comments:    make(map[int][]string),
	}
}

// NewLabel allocates a fresh, unbound label.
func (a *Assembly) NewLabel(name string) Label {
	label := Label{Name: name, ID: a.labelCount}
	a.labelCount++
	return label
}

// BindLabel binds a label to the current position. Binding the same
// label twice is an error.
func (a *Assembly) BindLabel(label Label) error {
	if _, ok := a.labels[label]; ok {
		return &BuildError{Kind: ErrDuplicateLabel, Label: label.String()}
	}
	pos := len(a.instructions)
	a.labels[label] = pos
	if _, ok := a.labelsRev[pos]; ok {
		a.extraLabels[pos] = append(a.extraLabels[pos], label)
	} else {
		a.labelsRev[pos] = label
	}
	return nil
}

// Push appends a plain instruction with its source span.
func (a *Assembly) Push(inst opcodes.Instruction, span diagnostics.Span) {
	a.instructions = append(a.instructions, assemblyInst{
		inst:     inst,
		location: diagnostics.Location{SourceID: a.location.SourceID, Span: span},
	})
}

// PushWithComment appends an instruction and attaches a debug comment.
func (a *Assembly) PushWithComment(inst opcodes.Instruction, span diagnostics.Span, comment string) {
	a.comments[len(a.instructions)] = append(a.comments[len(a.instructions)], comment)
	a.Push(inst, span)
}

func (a *Assembly) pushJump(inst opcodes.Instruction, label Label, span diagnostics.Span) {
	a.instructions = append(a.instructions, assemblyInst{
		inst:     inst,
		label:    label,
		hasLabel: true,
		location: diagnostics.Location{SourceID: a.location.SourceID, Span: span},
	})
}

// Jump emits an unconditional jump to label.
func (a *Assembly) Jump(label Label, span diagnostics.Span) {
	a.pushJump(opcodes.Instruction{Opcode: opcodes.OP_JUMP}, label, span)
}

// JumpIf emits a jump taken when the popped value is true.
func (a *Assembly) JumpIf(label Label, span diagnostics.Span) {
	a.pushJump(opcodes.Instruction{Opcode: opcodes.OP_JUMP_IF}, label, span)
}

// JumpIfNot emits a jump taken when the popped value is false.
func (a *Assembly) JumpIfNot(label Label, span diagnostics.Span) {
	a.pushJump(opcodes.Instruction{Opcode: opcodes.OP_JUMP_IF_NOT}, label, span)
}

// JumpIfOrPop jumps without popping when the top is true, otherwise
// pops and falls through.
func (a *Assembly) JumpIfOrPop(label Label, span diagnostics.Span) {
	a.pushJump(opcodes.Instruction{Opcode: opcodes.OP_JUMP_IF_OR_POP}, label, span)
}

// JumpIfNotOrPop jumps without popping when the top is false,
// otherwise pops and falls through.
func (a *Assembly) JumpIfNotOrPop(label Label, span diagnostics.Span) {
	a.pushJump(opcodes.Instruction{Opcode: opcodes.OP_JUMP_IF_NOT_OR_POP}, label, span)
}

// JumpIfBranch jumps when the branch register holds branch.
func (a *Assembly) JumpIfBranch(branch int, label Label, span diagnostics.Span) {
	a.pushJump(opcodes.Instruction{Opcode: opcodes.OP_JUMP_IF_BRANCH, A: branch}, label, span)
}

// PopAndJumpIfNot pops a boolean; when false it pops count locals and
// jumps.
func (a *Assembly) PopAndJumpIfNot(count int, label Label, span diagnostics.Span) {
	a.pushJump(opcodes.Instruction{Opcode: opcodes.OP_POP_AND_JUMP_IF_NOT, A: count}, label, span)
}

// IterNext advances the iterator in frame slot offset, jumping to
// label when it is exhausted.
func (a *Assembly) IterNext(offset int, label Label, span diagnostics.Span) {
	a.pushJump(opcodes.Instruction{Opcode: opcodes.OP_ITER_NEXT, A: offset}, label, span)
}

// Len returns the number of emitted instructions.
func (a *Assembly) Len() int {
	return len(a.instructions)
}
