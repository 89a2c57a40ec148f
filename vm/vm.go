package vm

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/runelang/rune/compiler"
	"github.com/runelang/rune/hash"
	"github.com/runelang/rune/opcodes"
	"github.com/runelang/rune/registry"
	"github.com/runelang/rune/values"
)

// Options tunes a virtual machine.
type Options struct {
	// StackCapacity preallocates the operand stack.
	StackCapacity int
	// MaxCallDepth bounds the number of live call frames.
	MaxCallDepth int
	// InstanceCacheSize bounds the resolved instance-dispatch cache.
	InstanceCacheSize int
	// Tracer, when set, logs one entry per executed instruction and
	// per frame transition at debug level.
	Tracer *logrus.Logger
}

// DefaultOptions returns the options used by New.
func DefaultOptions() Options {
	return Options{
		StackCapacity:     64,
		MaxCallDepth:      1024,
		InstanceCacheSize: 256,
	}
}

// frame is one suspended caller: where to resume and where its locals
// start.
type frame struct {
	ip          int
	stackBottom int
}

// resolvedFn caches the outcome of instance-function resolution.
type resolvedFn struct {
	unitFn  compiler.UnitFn
	hasUnit bool
	handler values.Handler
}

type haltReason int

const (
	haltComplete haltReason = iota
	haltYielded
)

// Vm executes a frozen unit against a runtime context. One Vm runs on
// one goroutine at a time; several VMs may share the same unit and
// context.
type Vm struct {
	rt   *registry.RuntimeContext
	unit *compiler.Unit

	ip     int
	lastIP int
	stack  *values.Stack
	frames []frame

	// branch is set by select and consumed by jump-if-branch.
	branch *int

	// fiberKind is the call kind this VM was forked to drive, or
	// CallImmediate for a root VM.
	fiberKind values.CallKind

	cache  *lru.Cache[hash.Hash, resolvedFn]
	tracer *logrus.Logger

	maxCallDepth int
}

// New builds a virtual machine with default options.
func New(rt *registry.RuntimeContext, unit *compiler.Unit) *Vm {
	return NewWithOptions(rt, unit, DefaultOptions())
}

// NewWithOptions builds a virtual machine.
func NewWithOptions(rt *registry.RuntimeContext, unit *compiler.Unit, options Options) *Vm {
	if options.StackCapacity <= 0 {
		options.StackCapacity = 64
	}
	if options.MaxCallDepth <= 0 {
		options.MaxCallDepth = 1024
	}
	if options.InstanceCacheSize <= 0 {
		options.InstanceCacheSize = 256
	}
	cache, _ := lru.New[hash.Hash, resolvedFn](options.InstanceCacheSize)
	return &Vm{
		rt:           rt,
		unit:         unit,
		stack:        values.NewStackWithCapacity(options.StackCapacity),
		cache:        cache,
		tracer:       options.Tracer,
		maxCallDepth: options.MaxCallDepth,
	}
}

// SetTracer installs or clears the instruction tracer.
func (v *Vm) SetTracer(tracer *logrus.Logger) {
	v.tracer = tracer
}

// Unit returns the unit the VM executes.
func (v *Vm) Unit() *compiler.Unit {
	return v.unit
}

// Stack exposes the operand stack, primarily for tests and tooling.
func (v *Vm) Stack() *values.Stack {
	return v.stack
}

func (v *Vm) resolveHash(path any) (hash.Hash, error) {
	switch p := path.(type) {
	case hash.Hash:
		return p, nil
	case *hash.Item:
		return hash.Type(p), nil
	case []string:
		return hash.TypeOf(p...), nil
	case string:
		item, err := hash.ParseItem(p)
		if err != nil {
			return hash.Empty, err
		}
		return hash.Type(item), nil
	}
	return hash.Empty, v.err(ErrBadInstruction, "cannot resolve path %v", path)
}

// Call resolves the function named by path (a hash.Hash, *hash.Item,
// []string or "::"-separated string), pushes args and runs to
// completion. A non-immediate function returns its wrapper value
// (Future, Generator or Stream) without running the body.
func (v *Vm) Call(path any, args ...values.Value) (values.Value, error) {
	return v.CallContext(context.Background(), path, args...)
}

// CallContext is Call with an explicit context governing suspension
// points.
func (v *Vm) CallContext(ctx context.Context, path any, args ...values.Value) (values.Value, error) {
	h, err := v.resolveHash(path)
	if err != nil {
		return values.Unit(), err
	}

	fn, inUnit := v.unit.Function(h)
	if !inUnit {
		if handler, ok := v.rt.Function(h); ok {
			stack := values.NewStack()
			for _, arg := range args {
				stack.Push(arg)
			}
			if err := callHandler(handler, stack, len(args)); err != nil {
				return values.Unit(), v.wrapErr(err)
			}
			return stack.Pop()
		}
		return values.Unit(), &Error{Kind: ErrMissingFunction, Hash: h, unit: v.unit}
	}

	if fn.Kind != compiler.UnitFnOffset {
		out, err := v.construct(fn, argsToStack(args))
		if err != nil {
			return values.Unit(), err
		}
		return out, nil
	}

	if fn.Args != len(args) {
		return values.Unit(), v.err(ErrBadArgumentCount, "expected %d arguments, got %d", fn.Args, len(args))
	}

	if fn.Call != values.CallImmediate {
		child := v.fork(fn, args)
		return child.wrapper(fn.Call), nil
	}

	v.reset()
	for _, arg := range args {
		v.stack.Push(arg)
	}
	v.ip = fn.Offset

	reason, out, err := v.run(ctx)
	if err != nil {
		return values.Unit(), err
	}
	if reason != haltComplete {
		return values.Unit(), v.err(ErrBadInstruction, "function suspended outside a fiber")
	}
	if v.stack.Len() != 1 || len(v.frames) != 0 {
		return values.Unit(), v.err(ErrBadInstruction, "dirty stack after completion")
	}
	return out, nil
}

// AsyncCall wraps a Call in a future the host can await.
func (v *Vm) AsyncCall(path any, args ...values.Value) *values.Future {
	return values.NewFuture(func(ctx context.Context) (values.Value, error) {
		return v.CallContext(ctx, path, args...)
	})
}

// Resume drives a Generator or Stream value, sending it a value and
// returning the resulting GeneratorState.
func (v *Vm) Resume(ctx context.Context, wrapper values.Value, send values.Value) (values.Value, error) {
	switch wrapper.Kind() {
	case values.KindGenerator:
		gen, release, err := wrapper.BorrowGenerator("resume")
		if err != nil {
			return values.Unit(), v.wrapErr(err)
		}
		defer release()
		out, err := gen.Resume(ctx, send)
		if err != nil {
			return values.Unit(), v.wrapErr(err)
		}
		return out, nil
	case values.KindStream:
		stream, release, err := wrapper.BorrowStream("resume")
		if err != nil {
			return values.Unit(), v.wrapErr(err)
		}
		defer release()
		out, err := stream.Resume(ctx, send)
		if err != nil {
			return values.Unit(), v.wrapErr(err)
		}
		return out, nil
	}
	return values.Unit(), v.err(ErrUnsupportedOperation, "cannot resume %s", wrapper.TypeInfo())
}

// SendValue is Resume with the conventional name used by hosts.
func (v *Vm) SendValue(ctx context.Context, wrapper values.Value, send values.Value) (values.Value, error) {
	return v.Resume(ctx, wrapper, send)
}

func (v *Vm) reset() {
	v.stack = values.NewStackWithCapacity(64)
	v.frames = v.frames[:0]
	v.branch = nil
	v.ip = 0
}

func argsToStack(args []values.Value) *values.Stack {
	stack := values.NewStack()
	for _, arg := range args {
		stack.Push(arg)
	}
	return stack
}

// fork prepares a child VM owning its own fiber for a non-immediate
// function. The child shares the frozen unit, context and dispatch
// cache.
func (v *Vm) fork(fn compiler.UnitFn, args []values.Value) *Vm {
	child := &Vm{
		rt:           v.rt,
		unit:         v.unit,
		stack:        values.NewStackWithCapacity(len(args) + 8),
		cache:        v.cache,
		tracer:       v.tracer,
		maxCallDepth: v.maxCallDepth,
		fiberKind:    fn.Call,
		ip:           fn.Offset,
	}
	for _, arg := range args {
		child.stack.Push(arg)
	}
	return child
}

// wrapper builds the value handed to the caller of a non-immediate
// function.
func (v *Vm) wrapper(call values.CallKind) values.Value {
	switch call {
	case values.CallAsync:
		return values.NewFutureValue(values.NewFuture(func(ctx context.Context) (values.Value, error) {
			reason, out, err := v.run(ctx)
			if err != nil {
				return values.Unit(), err
			}
			if reason != haltComplete {
				return values.Unit(), v.err(ErrBadInstruction, "async function yielded")
			}
			return out, nil
		}))
	case values.CallGenerator:
		return values.NewGeneratorValue(values.NewGenerator(newExecution(v)))
	case values.CallStream:
		return values.NewStreamValue(values.NewStream(newExecution(v)))
	}
	return values.Unit()
}

// run is the dispatch loop. It executes until the outermost frame
// returns, a suspension point yields, or an instruction fails. The
// instruction pointer is advanced before the instruction executes, so
// jump offsets are relative to the following instruction.
func (v *Vm) run(ctx context.Context) (haltReason, values.Value, error) {
	for {
		inst, ok := v.unit.Instruction(v.ip)
		if !ok {
			return haltComplete, values.Unit(), v.err(ErrBadInstruction, "instruction pointer %d out of range", v.ip)
		}
		v.lastIP = v.ip
		v.ip++

		if v.tracer != nil {
			v.tracer.WithFields(logrus.Fields{
				"ip":     v.lastIP,
				"op":     inst.Opcode.String(),
				"stack":  v.stack.Len(),
				"frames": len(v.frames),
			}).Debug("exec")
		}

		done, reason, out, err := v.step(ctx, inst)
		if err != nil {
			return haltComplete, values.Unit(), v.annotate(err)
		}
		if done {
			return reason, out, nil
		}
	}
}

// annotate attaches the frame trace to a bubbling error.
func (v *Vm) annotate(err error) error {
	vmErr := v.wrapErr(err)
	for i := len(v.frames) - 1; i >= 0; i-- {
		vmErr.Trace = append(vmErr.Trace, v.frames[i].ip)
	}
	return vmErr
}

// step executes one instruction. It reports completion when the
// outermost frame returned or a yield suspended the fiber.
func (v *Vm) step(ctx context.Context, inst opcodes.Instruction) (bool, haltReason, values.Value, error) {
	switch inst.Opcode {
	case opcodes.OP_NOP:

	case opcodes.OP_ADD, opcodes.OP_SUB, opcodes.OP_MUL, opcodes.OP_DIV,
		opcodes.OP_MOD, opcodes.OP_SHL, opcodes.OP_SHR, opcodes.OP_BIT_AND,
		opcodes.OP_BIT_OR, opcodes.OP_BIT_XOR:
		if err := v.binaryOp(inst.Opcode); err != nil {
			return false, 0, values.Unit(), err
		}

	case opcodes.OP_NEG:
		if err := v.negOp(); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_NOT:
		if err := v.notOp(); err != nil {
			return false, 0, values.Unit(), err
		}

	case opcodes.OP_EQ, opcodes.OP_NEQ, opcodes.OP_LT, opcodes.OP_LTE,
		opcodes.OP_GT, opcodes.OP_GTE:
		if err := v.comparisonOp(inst.Opcode); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_IS:
		if err := v.isOp(); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_IS_UNIT:
		val, err := v.stack.Pop()
		if err != nil {
			return false, 0, values.Unit(), err
		}
		v.stack.Push(values.NewBool(val.IsUnit()))
	case opcodes.OP_IS_ERR:
		if err := v.isErrOp(); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_AND, opcodes.OP_OR:
		if err := v.boolOp(inst.Opcode); err != nil {
			return false, 0, values.Unit(), err
		}

	case opcodes.OP_ADD_ASSIGN, opcodes.OP_SUB_ASSIGN, opcodes.OP_MUL_ASSIGN,
		opcodes.OP_DIV_ASSIGN, opcodes.OP_MOD_ASSIGN, opcodes.OP_SHL_ASSIGN,
		opcodes.OP_SHR_ASSIGN, opcodes.OP_BIT_AND_ASSIGN,
		opcodes.OP_BIT_OR_ASSIGN, opcodes.OP_BIT_XOR_ASSIGN:
		if err := v.compoundAssign(inst); err != nil {
			return false, 0, values.Unit(), err
		}

	case opcodes.OP_PUSH:
		val, err := v.immediateValue(inst.Imm)
		if err != nil {
			return false, 0, values.Unit(), err
		}
		v.stack.Push(val)
	case opcodes.OP_COPY:
		val, err := v.stack.At(inst.A)
		if err != nil {
			return false, 0, values.Unit(), err
		}
		v.stack.Push(val)
	case opcodes.OP_DUP:
		val, err := v.stack.Peek()
		if err != nil {
			return false, 0, values.Unit(), err
		}
		v.stack.Push(val)
	case opcodes.OP_DROP:
		if _, err := v.stack.Pop(); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_POP_N:
		if err := v.stack.PopN(inst.A); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_CLEAN:
		if err := v.stack.Clean(inst.A); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_REPLACE:
		val, err := v.stack.Pop()
		if err != nil {
			return false, 0, values.Unit(), err
		}
		if err := v.stack.SetAt(inst.A, val); err != nil {
			return false, 0, values.Unit(), err
		}

	case opcodes.OP_JUMP:
		v.ip += inst.B
	case opcodes.OP_JUMP_IF:
		cond, err := v.popBool()
		if err != nil {
			return false, 0, values.Unit(), err
		}
		if cond {
			v.ip += inst.B
		}
	case opcodes.OP_JUMP_IF_NOT:
		cond, err := v.popBool()
		if err != nil {
			return false, 0, values.Unit(), err
		}
		if !cond {
			v.ip += inst.B
		}
	case opcodes.OP_JUMP_IF_OR_POP:
		if err := v.jumpIfOrPop(inst, true); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_JUMP_IF_NOT_OR_POP:
		if err := v.jumpIfOrPop(inst, false); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_JUMP_IF_BRANCH:
		if v.branch != nil && *v.branch == inst.A {
			v.branch = nil
			v.ip += inst.B
		}
	case opcodes.OP_POP_AND_JUMP_IF_NOT:
		cond, err := v.popBool()
		if err != nil {
			return false, 0, values.Unit(), err
		}
		if !cond {
			if err := v.stack.PopN(inst.A); err != nil {
				return false, 0, values.Unit(), err
			}
			v.ip += inst.B
		}

	case opcodes.OP_CALL:
		if err := v.opCall(inst.Hash, inst.B); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_CALL_INSTANCE:
		if err := v.opCallInstance(inst.Hash, inst.B); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_LOAD_INSTANCE_FN:
		if err := v.opLoadInstanceFn(inst.Hash); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_CALL_FN:
		if err := v.opCallFn(inst.B); err != nil {
			return false, 0, values.Unit(), err
		}

	case opcodes.OP_RETURN:
		val, err := v.stack.Pop()
		if err != nil {
			return false, 0, values.Unit(), err
		}
		if done := v.returnValue(val); done {
			return true, haltComplete, val, nil
		}
	case opcodes.OP_RETURN_UNIT:
		if done := v.returnValue(values.Unit()); done {
			return true, haltComplete, values.Unit(), nil
		}

	case opcodes.OP_VEC, opcodes.OP_TUPLE, opcodes.OP_OBJECT,
		opcodes.OP_TYPED_OBJECT, opcodes.OP_VARIANT_OBJECT,
		opcodes.OP_TYPED_TUPLE, opcodes.OP_VARIANT_TUPLE:
		if err := v.buildAggregate(inst); err != nil {
			return false, 0, values.Unit(), err
		}

	case opcodes.OP_INDEX_GET:
		if err := v.opIndexGet(); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_INDEX_SET:
		if err := v.opIndexSet(); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_TUPLE_INDEX_GET_AT:
		if err := v.opTupleIndexGetAt(inst.A, inst.B); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_OBJECT_INDEX_GET_AT:
		if err := v.opObjectIndexGetAt(inst.A, inst.B); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_FIELD_GET:
		if err := v.opFieldGet(inst.A); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_FIELD_SET:
		if err := v.opFieldSet(inst.A); err != nil {
			return false, 0, values.Unit(), err
		}

	case opcodes.OP_MATCH_SEQUENCE:
		if err := v.opMatchSequence(inst); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_MATCH_OBJECT:
		if err := v.opMatchObject(inst); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_EQ_BYTE, opcodes.OP_EQ_CHARACTER, opcodes.OP_EQ_INTEGER:
		if err := v.opEqImmediate(inst); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_EQ_STATIC_STRING:
		if err := v.opEqStaticString(inst.A); err != nil {
			return false, 0, values.Unit(), err
		}

	case opcodes.OP_ITER_NEXT:
		if err := v.opIterNext(ctx, inst); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_AWAIT:
		if err := v.opAwait(ctx); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_SELECT:
		if err := v.opSelect(ctx, inst.B); err != nil {
			return false, 0, values.Unit(), err
		}
	case opcodes.OP_YIELD:
		val, err := v.stack.Pop()
		if err != nil {
			return false, 0, values.Unit(), err
		}
		if v.fiberKind != values.CallGenerator && v.fiberKind != values.CallStream {
			return false, 0, values.Unit(), v.err(ErrBadInstruction, "yield outside generator or stream")
		}
		return true, haltYielded, val, nil
	case opcodes.OP_YIELD_UNIT:
		if v.fiberKind != values.CallGenerator && v.fiberKind != values.CallStream {
			return false, 0, values.Unit(), v.err(ErrBadInstruction, "yield outside generator or stream")
		}
		return true, haltYielded, values.Unit(), nil

	case opcodes.OP_PANIC:
		return false, 0, values.Unit(), &Error{
			Kind:    ErrPanic,
			IP:      v.lastIP,
			Message: opcodes.PanicReason(inst.A).String(),
			unit:    v.unit,
		}

	default:
		return false, 0, values.Unit(), v.err(ErrBadInstruction, "unknown opcode %s", inst.Opcode)
	}
	return false, 0, values.Unit(), nil
}

// returnValue unwinds one frame, reporting true when the outermost
// frame returned to the host.
func (v *Vm) returnValue(val values.Value) bool {
	if len(v.frames) == 0 {
		v.stack.SwapStackBottom(0)
		v.stack.Truncate(0)
		v.stack.Push(val)
		return true
	}
	fr := v.frames[len(v.frames)-1]
	v.frames = v.frames[:len(v.frames)-1]

	bottom := v.stack.SwapStackBottom(fr.stackBottom)
	v.stack.Truncate(bottom)
	v.stack.Push(val)
	v.ip = fr.ip

	if v.tracer != nil {
		v.tracer.WithFields(logrus.Fields{"ip": v.ip, "frames": len(v.frames)}).Debug("frame pop")
	}
	return false
}

func (v *Vm) pushFrame(bottom int) error {
	if len(v.frames) >= v.maxCallDepth {
		return v.err(ErrBadInstruction, "call depth limit %d exceeded", v.maxCallDepth)
	}
	v.frames = append(v.frames, frame{ip: v.ip, stackBottom: v.stack.SwapStackBottom(bottom)})
	if v.tracer != nil {
		v.tracer.WithFields(logrus.Fields{"frames": len(v.frames), "bottom": bottom}).Debug("frame push")
	}
	return nil
}

func (v *Vm) popBool() (bool, error) {
	val, err := v.stack.Pop()
	if err != nil {
		return false, err
	}
	b, ok := val.AsBool()
	if !ok {
		return false, v.err(ErrUnsupportedOperation, "expected bool, found %s", val.TypeInfo())
	}
	return b, nil
}

func (v *Vm) jumpIfOrPop(inst opcodes.Instruction, when bool) error {
	val, err := v.stack.Peek()
	if err != nil {
		return err
	}
	b, ok := val.AsBool()
	if !ok {
		return v.err(ErrUnsupportedOperation, "expected bool, found %s", val.TypeInfo())
	}
	if b == when {
		v.ip += inst.B
		return nil
	}
	_, err = v.stack.Pop()
	return err
}

func (v *Vm) immediateValue(imm opcodes.Immediate) (values.Value, error) {
	switch imm.Kind {
	case opcodes.ImmUnit:
		return values.Unit(), nil
	case opcodes.ImmBool:
		return values.NewBool(imm.Bool), nil
	case opcodes.ImmByte:
		return values.NewByte(byte(imm.Int)), nil
	case opcodes.ImmChar:
		return values.NewChar(rune(imm.Int)), nil
	case opcodes.ImmInteger:
		return values.NewInteger(imm.Int), nil
	case opcodes.ImmFloat:
		return values.NewFloat(imm.Float), nil
	case opcodes.ImmType:
		return values.NewTypeValue(imm.Hash), nil
	case opcodes.ImmStaticString:
		s, err := v.unit.LookupString(int(imm.Int))
		if err != nil {
			return values.Unit(), v.err(ErrBadInstruction, "%s", err)
		}
		return values.StaticStringValue(s), nil
	}
	return values.Unit(), v.err(ErrBadInstruction, "unknown immediate")
}
