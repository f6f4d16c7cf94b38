package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/deployer/internal/ir"
)

// Future kinds accepted in CUE module definitions.
const (
	KindContract           = "contract"
	KindLibrary            = "library"
	KindCall               = "call"
	KindStaticCall         = "staticCall"
	KindEncodeFunctionCall = "encodeFunctionCall"
	KindContractAt         = "contractAt"
	KindReadEventArgument  = "readEventArgument"
	KindSend               = "send"
)

// CompileModules compiles every module under the top-level "modules" field
// of root, in declaration order. Modules listed in another module's "uses"
// are compiled first and nested as its submodules.
//
//	modules: Token: {
//		futures: {
//			Token: {kind: "contract", args: ["Gold", {param: "supply", default: 1000}]}
//			mint:  {kind: "call", contract: "Token", function: "mint", args: [{account: 0}, 100]}
//		}
//	}
func CompileModules(root cue.Value) ([]*ir.Module, error) {
	if err := root.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	modulesVal := root.LookupPath(cue.ParsePath("modules"))
	if !modulesVal.Exists() {
		return nil, &CompileError{Field: "modules", Message: "no modules defined", Pos: root.Pos()}
	}

	c := &moduleCompiler{
		defs:     make(map[string]cue.Value),
		compiled: make(map[string]*ir.Module),
		visiting: make(map[string]bool),
	}
	iter, err := modulesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var names []string
	for iter.Next() {
		names = append(names, iter.Label())
		c.defs[iter.Label()] = iter.Value()
	}

	out := make([]*ir.Module, 0, len(names))
	for _, name := range names {
		m, err := c.module(name)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Select picks the module to deploy. An empty name selects the only module
// that no other module uses.
func Select(mods []*ir.Module, name string) (*ir.Module, error) {
	used := make(map[string]bool)
	for _, m := range mods {
		for _, sub := range m.Submodules {
			used[sub.ID] = true
		}
	}
	var roots []string
	for _, m := range mods {
		if name != "" && m.ID == name {
			return m, nil
		}
		if !used[m.ID] {
			roots = append(roots, m.ID)
		}
	}
	if name != "" {
		return nil, fmt.Errorf("module %q not found", name)
	}
	if len(roots) != 1 {
		return nil, fmt.Errorf("%d candidate modules (%s), choose one with --module", len(roots), strings.Join(roots, ", "))
	}
	for _, m := range mods {
		if m.ID == roots[0] {
			return m, nil
		}
	}
	return nil, fmt.Errorf("module %q not found", roots[0])
}

type moduleCompiler struct {
	defs     map[string]cue.Value
	compiled map[string]*ir.Module
	visiting map[string]bool
}

func (c *moduleCompiler) module(name string) (*ir.Module, error) {
	if m, ok := c.compiled[name]; ok {
		return m, nil
	}
	v := c.defs[name]
	if c.visiting[name] {
		return nil, &CompileError{Field: "modules." + name + ".uses", Message: "module " + name + " is part of a uses cycle", Pos: v.Pos()}
	}
	c.visiting[name] = true
	defer delete(c.visiting, name)

	if strings.Contains(name, ":") {
		return nil, &CompileError{Field: "modules." + name, Message: "module ids must not contain ':'", Pos: v.Pos()}
	}

	b := ir.NewModuleBuilder(name)
	known := make(map[string]ir.Future)

	usesVal := v.LookupPath(cue.ParsePath("uses"))
	if usesVal.Exists() {
		list, err := usesVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for list.Next() {
			subName, err := list.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			if _, ok := c.defs[subName]; !ok {
				return nil, &CompileError{Field: "modules." + name + ".uses", Message: fmt.Sprintf("unknown module %q", subName), Pos: list.Value().Pos()}
			}
			sub, err := c.module(subName)
			if err != nil {
				return nil, err
			}
			b.UseModule(sub)
			for _, f := range sub.AllFutures() {
				known[f.ID()] = f
			}
		}
	}

	defs, err := parseFutures(name, v)
	if err != nil {
		return nil, err
	}
	order, err := orderFutures(defs)
	if err != nil {
		return nil, err
	}
	fc := &futureCompiler{module: name, builder: b, known: known}
	for _, label := range order {
		if err := fc.compile(defs[label]); err != nil {
			return nil, err
		}
	}

	m := b.Build()
	c.compiled[name] = m
	return m, nil
}

// futureDef is a future definition before compilation.
type futureDef struct {
	label string
	kind  string
	value cue.Value
}

func parseFutures(module string, v cue.Value) (map[string]*futureDef, error) {
	futuresVal := v.LookupPath(cue.ParsePath("futures"))
	if !futuresVal.Exists() {
		return nil, &CompileError{Field: "modules." + module + ".futures", Message: "futures are required", Pos: v.Pos()}
	}
	iter, err := futuresVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	defs := make(map[string]*futureDef)
	for iter.Next() {
		label := iter.Label()
		fv := iter.Value()
		if strings.ContainsAny(label, ":#") {
			return nil, &CompileError{Field: field(module, label, ""), Message: "future names must not contain ':' or '#'", Pos: fv.Pos()}
		}
		kind, err := requiredString(fv, "kind", field(module, label, "kind"))
		if err != nil {
			return nil, err
		}
		defs[label] = &futureDef{label: label, kind: kind, value: fv}
	}
	return defs, nil
}

type futureCompiler struct {
	module  string
	builder *ir.ModuleBuilder
	known   map[string]ir.Future
}

func (c *futureCompiler) id(label string) string {
	if strings.Contains(label, ":") {
		return label
	}
	return c.module + ":" + label
}

func (c *futureCompiler) compile(d *futureDef) error {
	v := d.value
	opts := []ir.FutureOption{ir.WithID(d.label)}
	after, err := c.futureList(d, "after")
	if err != nil {
		return err
	}
	if len(after) > 0 {
		opts = append(opts, ir.After(after...))
	}
	for _, name := range []string{"value", "from"} {
		arg, ok, err := c.optionalArgument(d, name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if name == "value" {
			opts = append(opts, ir.WithValue(arg))
		} else {
			opts = append(opts, ir.WithFrom(arg))
		}
	}

	b := c.builder
	var f ir.Future
	switch d.kind {
	case KindContract, KindLibrary:
		name, err := c.artifactName(d)
		if err != nil {
			return err
		}
		libs, err := c.libraries(d)
		if err != nil {
			return err
		}
		if len(libs) > 0 {
			opts = append(opts, ir.WithLibraries(libs))
		}
		if d.kind == KindLibrary {
			f = b.Library(name, opts...)
			break
		}
		args, err := c.arguments(d, "args")
		if err != nil {
			return err
		}
		f = b.Contract(name, args, opts...)

	case KindCall, KindStaticCall, KindEncodeFunctionCall:
		contract, err := c.future(d, "contract", true)
		if err != nil {
			return err
		}
		function, err := requiredString(v, "function", field(c.module, d.label, "function"))
		if err != nil {
			return err
		}
		args, err := c.arguments(d, "args")
		if err != nil {
			return err
		}
		switch d.kind {
		case KindCall:
			f = b.Call(contract, function, args, opts...)
		case KindStaticCall:
			output, err := optionalString(v, "output")
			if err != nil {
				return err
			}
			f = b.StaticCall(contract, function, args, output, opts...)
		default:
			f = b.Encode(contract, function, args, opts...)
		}

	case KindContractAt:
		name, err := c.artifactName(d)
		if err != nil {
			return err
		}
		address, ok, err := c.optionalArgument(d, "address")
		if err != nil {
			return err
		}
		if !ok {
			return &CompileError{Field: field(c.module, d.label, "address"), Message: "address is required", Pos: v.Pos()}
		}
		f = b.ContractAt(name, address, opts...)

	case KindReadEventArgument:
		from, err := c.future(d, "future", true)
		if err != nil {
			return err
		}
		event, err := requiredString(v, "event", field(c.module, d.label, "event"))
		if err != nil {
			return err
		}
		argument, err := requiredString(v, "argument", field(c.module, d.label, "argument"))
		if err != nil {
			return err
		}
		emitter, err := c.future(d, "emitter", false)
		if err != nil {
			return err
		}
		index := 0
		if iv := v.LookupPath(cue.ParsePath("index")); iv.Exists() {
			n, err := iv.Int64()
			if err != nil {
				return formatCUEError(err)
			}
			index = int(n)
		}
		f = b.ReadEventArgument(from, event, argument, emitter, index, opts...)

	case KindSend:
		to, ok, err := c.optionalArgument(d, "to")
		if err != nil {
			return err
		}
		if !ok {
			return &CompileError{Field: field(c.module, d.label, "to"), Message: "to is required", Pos: v.Pos()}
		}
		data, err := optionalString(v, "data")
		if err != nil {
			return err
		}
		f = b.Send(d.label, to, data, opts...)

	default:
		return &CompileError{
			Field:   field(c.module, d.label, "kind"),
			Message: fmt.Sprintf("unknown future kind %q", d.kind),
			Pos:     v.Pos(),
		}
	}
	c.known[f.ID()] = f
	return nil
}

func (c *futureCompiler) artifactName(d *futureDef) (string, error) {
	name, err := optionalString(d.value, "artifact")
	if err != nil {
		return "", err
	}
	if name == "" {
		name = d.label
	}
	return name, nil
}

// future resolves a field naming another future.
func (c *futureCompiler) future(d *futureDef, name string, required bool) (ir.Future, error) {
	fv := d.value.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		if required {
			return nil, &CompileError{Field: field(c.module, d.label, name), Message: name + " is required", Pos: d.value.Pos()}
		}
		return nil, nil
	}
	label, err := fv.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	return c.lookup(d, name, label, fv.Pos())
}

func (c *futureCompiler) lookup(d *futureDef, name, label string, pos token.Pos) (ir.Future, error) {
	f, ok := c.known[c.id(label)]
	if !ok {
		return nil, &CompileError{Field: field(c.module, d.label, name), Message: fmt.Sprintf("unknown future %q", label), Pos: pos}
	}
	return f, nil
}

func (c *futureCompiler) futureList(d *futureDef, name string) ([]ir.Future, error) {
	lv := d.value.LookupPath(cue.ParsePath(name))
	if !lv.Exists() {
		return nil, nil
	}
	list, err := lv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []ir.Future
	for list.Next() {
		label, err := list.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		f, err := c.lookup(d, name, label, list.Value().Pos())
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (c *futureCompiler) libraries(d *futureDef) (map[string]ir.Future, error) {
	lv := d.value.LookupPath(cue.ParsePath("libraries"))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	libs := make(map[string]ir.Future)
	for iter.Next() {
		label, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		f, err := c.lookup(d, "libraries."+iter.Label(), label, iter.Value().Pos())
		if err != nil {
			return nil, err
		}
		libs[iter.Label()] = f
	}
	return libs, nil
}

func (c *futureCompiler) arguments(d *futureDef, name string) ([]ir.Argument, error) {
	lv := d.value.LookupPath(cue.ParsePath(name))
	if !lv.Exists() {
		return nil, nil
	}
	list, err := lv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []ir.Argument
	for list.Next() {
		arg, err := compileArgument(c.module, list.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, arg)
	}
	return out, nil
}

func (c *futureCompiler) optionalArgument(d *futureDef, name string) (ir.Argument, bool, error) {
	v := d.value.LookupPath(cue.ParsePath(name))
	if !v.Exists() {
		return nil, false, nil
	}
	arg, err := compileArgument(c.module, v)
	if err != nil {
		return nil, false, err
	}
	return arg, true, nil
}

func requiredString(v cue.Value, name, fieldPath string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(name))
	if !sv.Exists() {
		return "", &CompileError{Field: fieldPath, Message: name + " is required", Pos: v.Pos()}
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, name string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(name))
	if !sv.Exists() {
		return "", nil
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func field(module, label, name string) string {
	if name == "" {
		return "modules." + module + ".futures." + label
	}
	return "modules." + module + ".futures." + label + "." + name
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
