// Package decompiler is the entry point of the core: it parses a class
// file and reconstructs the statement tree of every method, isolating
// methods from each other so one unsupported body never affects the rest.
package decompiler

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/zeebo/blake3"

	"github.com/dhamidi/jdec/assemble"
	"github.com/dhamidi/jdec/ast"
	"github.com/dhamidi/jdec/bytecode"
	"github.com/dhamidi/jdec/cfg"
	"github.com/dhamidi/jdec/classfile"
	"github.com/dhamidi/jdec/idiom"
	"github.com/dhamidi/jdec/ir"
)

var log = commonlog.GetLogger("jdec.decompiler")

type Status int

const (
	// StatusOK means the body reduced to structured constructs only.
	StatusOK Status = iota
	// StatusIncomplete means some control flow is left as labels and gotos.
	StatusIncomplete
	// StatusFailed means the body could not be modelled; see Failure.
	StatusFailed
)

var statusNames = map[Status]string{
	StatusOK:         "ok",
	StatusIncomplete: "incomplete",
	StatusFailed:     "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Failure locates why a method could not be decompiled.
type Failure struct {
	Offset int
	Opcode byte
	Reason string
}

func (f *Failure) String() string {
	return fmt.Sprintf("offset %d (%s): %s", f.Offset, bytecode.Name(f.Opcode), f.Reason)
}

// Method is the outcome for one method.
type Method struct {
	Name       string
	Descriptor string
	Access     classfile.AccessFlags
	Status     Status
	// Line is the first source line of the body, 0 when unknown.
	Line int
	// Tree is nil for methods without code and for failed methods.
	Tree *ast.Node
	// IR is the instruction arena Tree refers to.
	IR      *ir.Method
	Failure *Failure
	// Disassembly is filled for failed methods, for callers that want to
	// show the raw body instead.
	Disassembly []bytecode.Line
}

// Key is name plus descriptor, unique within a class.
func (m *Method) Key() string { return m.Name + m.Descriptor }

// Result is the outcome for one class.
type Result struct {
	Class  string
	Digest [32]byte
	File   *classfile.ClassFile
	// Model summarises the declarations, without the hidden members.
	Model   *ClassModel
	Methods []*Method
	// Synthetic lists the members idioms made redundant, sorted.
	Synthetic []string
}

func (r *Result) DigestHex() string { return hex.EncodeToString(r.Digest[:]) }

// Status is the worst status among the methods.
func (r *Result) Status() Status {
	worst := StatusOK
	for _, m := range r.Methods {
		if m.Status > worst {
			worst = m.Status
		}
	}
	return worst
}

// Method returns the result for name and descriptor; an empty descriptor
// matches the first method of that name.
func (r *Result) Method(name, descriptor string) *Method {
	for _, m := range r.Methods {
		if m.Name == name && (descriptor == "" || m.Descriptor == descriptor) {
			return m
		}
	}
	return nil
}

type Options struct {
	// Workers bounds how many methods are processed at once; 0 means
	// runtime.NumCPU().
	Workers   int
	MaxRounds int
	PreReduce bool
	// DisabledIdioms names passes of idiom.Names to skip.
	DisabledIdioms []string
	// Loader resolves other classes, such as anonymous inner classes. It is
	// optional.
	Loader Loader
}

// Decompile parses data and reconstructs every method. The error is
// non-nil only when the class file itself is malformed; per-method
// problems are reported in the method results.
func Decompile(data []byte, opts Options) (*Result, error) {
	return DecompileContext(context.Background(), data, opts)
}

// DecompileContext is Decompile with cancellation. ctx is checked between
// methods; methods not started when it is cancelled are reported failed.
func DecompileContext(ctx context.Context, data []byte, opts Options) (*Result, error) {
	cf, err := classfile.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse class: %w", err)
	}
	d := newDecompiler(cf, opts)
	res := &Result{
		Class:   cf.ClassName(),
		Digest:  blake3.Sum256(data),
		File:    cf,
		Methods: make([]*Method, len(cf.Methods)),
	}

	errs := make([]error, len(cf.Methods))
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(cf.Methods) {
		workers = len(cf.Methods)
	}
	tasks := make(chan int, len(cf.Methods))
	for i := range cf.Methods {
		tasks <- i
	}
	close(tasks)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range tasks {
				mi := &cf.Methods[i]
				if err := ctx.Err(); err != nil {
					res.Methods[i] = d.skipped(mi, err)
					continue
				}
				res.Methods[i], errs[i] = d.method(mi)
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	res.Synthetic = synthetic(res.Methods)
	res.Model = NewClassModel(cf, res.Synthetic)
	return res, nil
}

type decompiler struct {
	cf       *classfile.ClassFile
	opts     Options
	pipeline *idiom.Pipeline

	mu      sync.Mutex
	classes map[string]*classfile.ClassFile
}

func newDecompiler(cf *classfile.ClassFile, opts Options) *decompiler {
	d := &decompiler{cf: cf, opts: opts, classes: make(map[string]*classfile.ClassFile)}
	ctx := &idiom.Context{Class: cf}
	if opts.Loader != nil {
		ctx.Lookup = d.lookup
	}
	d.pipeline = idiom.New(ctx).Without(opts.DisabledIdioms...)
	return d
}

// lookup loads and caches another class through the loader.
func (d *decompiler) lookup(name string) (*classfile.ClassFile, error) {
	d.mu.Lock()
	cf, ok := d.classes[name]
	d.mu.Unlock()
	if ok {
		return cf, nil
	}
	data, err := d.opts.Loader.Load(name)
	if err != nil {
		return nil, err
	}
	if cf, err = classfile.ParseBytes(data); err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	d.mu.Lock()
	d.classes[name] = cf
	d.mu.Unlock()
	return cf, nil
}

func (d *decompiler) newMethod(mi *classfile.MethodInfo) *Method {
	cp := d.cf.ConstantPool
	return &Method{Name: mi.Name(cp), Descriptor: mi.Descriptor(cp), Access: mi.AccessFlags, Line: mi.FirstLine()}
}

func (d *decompiler) skipped(mi *classfile.MethodInfo, err error) *Method {
	res := d.newMethod(mi)
	res.Status = StatusFailed
	res.Failure = &Failure{Reason: err.Error()}
	return res
}

// method runs the pipeline on one method. The error is reserved for a
// malformed class; everything else ends up in the result.
func (d *decompiler) method(mi *classfile.MethodInfo) (res *Method, err error) {
	res = d.newMethod(mi)
	code := mi.Code()
	if code == nil {
		return res, nil
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("%s%s: recovered: %v", res.Name, res.Descriptor, r)
			d.fail(res, code, &ir.UnsupportedError{Reason: fmt.Sprintf("internal error: %v", r)})
			err = nil
		}
	}()

	m, err := ir.Build(code, d.cf.ConstantPool, mi.IsStatic())
	if err != nil {
		if errors.Is(err, classfile.ErrMalformedInput) {
			return nil, fmt.Errorf("method %s%s: %w", res.Name, res.Descriptor, err)
		}
		d.fail(res, code, err)
		return res, nil
	}
	res.IR = m

	list := d.pipeline.Run(m, m.List)
	g := cfg.Reduce(m, list, cfg.StageFull, cfg.Options{
		MaxRounds: d.opts.MaxRounds,
		PreReduce: d.opts.PreReduce,
		Idioms:    d.pipeline,
	})
	tree, complete := assemble.Assemble(g)
	if err := assemble.Check(tree, g.Statements()); err != nil {
		d.fail(res, code, &ir.UnsupportedError{Reason: err.Error()})
		return res, nil
	}
	res.Tree = tree
	res.Status = StatusOK
	if !complete {
		res.Status = StatusIncomplete
		log.Debugf("%s%s: reconstruction incomplete", res.Name, res.Descriptor)
	}
	return res, nil
}

func (d *decompiler) fail(res *Method, code *classfile.CodeAttribute, err error) {
	res.Status = StatusFailed
	res.Tree = nil
	res.Failure = &Failure{Reason: err.Error()}
	var ue *ir.UnsupportedError
	if errors.As(err, &ue) {
		res.Failure = &Failure{Offset: ue.Offset, Opcode: ue.Opcode, Reason: ue.Reason}
	}
	res.Disassembly, _ = bytecode.Disassemble(code.Code, d.cf.ConstantPool)
	log.Debugf("%s%s: %s", res.Name, res.Descriptor, res.Failure)
}

func synthetic(methods []*Method) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range methods {
		if m.IR == nil || m.Status == StatusFailed {
			continue
		}
		for _, s := range m.IR.Synthetic {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}
