package vm

import "github.com/rocky/x-python/values"

// generatorState tracks a Generator's lifecycle across suspensions
//.
type generatorState int

const (
	genCreated generatorState = iota
	genSuspended
	genRunning
	genDone
)

// Generator wraps a suspended Frame: resuming it means re-entering
// run(fr) at the frame's saved IP, exactly as describes --
// no goroutine, no channel, just a Go function call that picks up
// where the last one returned.
type Generator struct {
	it       *Interpreter
	fr       *Frame
	state    generatorState
	retVal   *values.Value // the StopIteration payload once genDone
}

// NewGenerator wraps fr (already bound by bindArguments, not yet run)
// as a suspended generator object, returned by callInterpreted instead
// of running the code body.
func NewGenerator(it *Interpreter, fr *Frame) *values.Value {
	g := &Generator{it: it, fr: fr, state: genCreated}
	fr.Gen = g
	return &values.Value{Type: values.TypeGenerator, Data: g}
}

// AsGenerator extracts the Generator backing a TypeGenerator Value.
func AsGenerator(v *values.Value) *Generator { return v.Data.(*Generator) }

// Send resumes the generator with sent as the value of the suspended
// YIELD_VALUE expression (None for the initial send()/next()),
// returning the next yielded value. On completion it returns ok=false
// with a StopIteration InterpretedException carrying the return value,
// which RetVal() also reports. Resuming means running fr again through the same
// fetch-decode loop, picking back up at fr.IP with fr.Stack/fr.Blocks
// exactly as YIELD_VALUE left them.
func (g *Generator) Send(sent *values.Value) (*values.Value, bool, error) {
	if g.state == genDone {
		return nil, false, &InterpretedException{Exc: g.it.newStopIteration(nil)}
	}
	if g.state == genRunning {
		return nil, false, &InterpretedException{Exc: g.it.newRuntimeError("generator already executing")}
	}

	if g.state == genCreated {
		if sent != nil && !sent.IsNone() {
			return nil, false, &InterpretedException{Exc: g.it.newTypeError("can't send non-None value to a just-started generator")}
		}
	} else {
		if sent == nil {
			sent = values.None()
		}
		g.fr.Push(sent)
	}

	g.state = genRunning
	if err := g.it.Stack.PushFrame(g.fr); err != nil {
		g.state = genSuspended
		return nil, false, err
	}
	val, kind, err := g.it.run(g.fr)
	g.it.Stack.PopFrame()

	switch {
	case err != nil:
		g.state = genDone
		return nil, false, err
	case kind == SigYield:
		g.state = genSuspended
		return val, true, nil
	case kind == SigException:
		g.state = genDone
		return nil, false, &InterpretedException{Exc: g.fr.PendingException}
	default: // SigReturn
		g.state = genDone
		g.retVal = val
		return nil, false, &InterpretedException{Exc: g.it.newStopIteration(val)}
	}
}

// RetVal is the generator's `return` value, available once Send has
// reported completion.
func (g *Generator) RetVal() *values.Value {
	if g.retVal == nil {
		return values.None()
	}
	return g.retVal
}

// Close implements generator.close() by marking the generator done.
// It does not resume the frame: no exception is raised at the
// suspension point, so pending finally blocks and with-exits in the
// body do not run.
func (g *Generator) Close() error {
	if g.state == genDone || g.state == genCreated {
		g.state = genDone
		return nil
	}
	g.state = genDone
	return nil
}

// generatorIterator adapts a Generator to the Iterator interface
// GET_ITER/FOR_ITER use, so `for x in gen_func():` drives it the same
// way as any other iterable. A mid-iteration error other
// than StopIteration is swallowed as exhaustion, matching this
// engine's two-return Iterator protocol; FOR_ITER callers that need
// the original error should drive the generator directly via Send.
type generatorIterator struct {
	gen *Generator
}

func (gi *generatorIterator) Next() (*values.Value, bool) {
	v, ok, err := gi.gen.Send(values.None())
	if err != nil || !ok {
		return nil, false
	}
	return v, true
}
