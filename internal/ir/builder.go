package ir

import "github.com/roach88/deployer/internal/artifacts"

// ModuleBuilder assembles a Module in Go code. Future ids default to
// "<module>:<name>"; calls default to "<module>:<contract name>.<function>".
//
//	b := ir.NewModuleBuilder("Token")
//	token := b.Contract("Token", []ir.Argument{ir.Lit("Gold")})
//	b.Call(token, "mint", []ir.Argument{ir.AccountRef{Index: 0}, ir.Lit(100)})
//	mod := b.Build()
type ModuleBuilder struct {
	module *Module
	ids    map[string]bool
}

// FutureOption customizes a future created by ModuleBuilder.
type FutureOption func(*futureOptions)

type futureOptions struct {
	id        string
	after     []string
	value     Argument
	from      Argument
	libraries map[string]Argument
	artifact  *artifacts.Artifact
}

// WithID overrides the name part of the generated future id.
func WithID(id string) FutureOption {
	return func(o *futureOptions) { o.id = id }
}

// After adds explicit dependencies.
func After(futures ...Future) FutureOption {
	return func(o *futureOptions) {
		for _, f := range futures {
			o.after = append(o.after, f.ID())
		}
	}
}

// WithValue sets the wei value sent with the transaction.
func WithValue(v Argument) FutureOption {
	return func(o *futureOptions) { o.value = v }
}

// WithFrom sets the sender.
func WithFrom(from Argument) FutureOption {
	return func(o *futureOptions) { o.from = from }
}

// WithLibraries links libraries by name.
func WithLibraries(libs map[string]Future) FutureOption {
	return func(o *futureOptions) {
		o.libraries = make(map[string]Argument, len(libs))
		for name, f := range libs {
			o.libraries[name] = FutureRef{ID: f.ID()}
		}
	}
}

// WithArtifact deploys from a literal artifact instead of resolving by name.
func WithArtifact(a *artifacts.Artifact) FutureOption {
	return func(o *futureOptions) { o.artifact = a }
}

// NewModuleBuilder starts a module with the given id.
func NewModuleBuilder(id string) *ModuleBuilder {
	return &ModuleBuilder{
		module: &Module{ID: id},
		ids:    make(map[string]bool),
	}
}

func (b *ModuleBuilder) options(defaultName string, opts []FutureOption) (futureOptions, FutureMeta) {
	var o futureOptions
	for _, opt := range opts {
		opt(&o)
	}
	name := defaultName
	if o.id != "" {
		name = o.id
	}
	return o, FutureMeta{FutureID: b.module.ID + ":" + name, Module: b.module.ID, After: o.after}
}

func (b *ModuleBuilder) add(f Future) {
	if b.ids[f.ID()] {
		panic("ir: duplicate future id " + f.ID())
	}
	b.ids[f.ID()] = true
	b.module.Futures = append(b.module.Futures, f)
}

// Contract adds a contract deployment.
func (b *ModuleBuilder) Contract(name string, args []Argument, opts ...FutureOption) *ContractDeploymentFuture {
	o, meta := b.options(name, opts)
	f := &ContractDeploymentFuture{
		FutureMeta:   meta,
		ContractName: name,
		Artifact:     o.artifact,
		Args:         args,
		Libraries:    o.libraries,
		Value:        o.value,
		From:         o.from,
	}
	b.add(f)
	return f
}

// Library adds a library deployment.
func (b *ModuleBuilder) Library(name string, opts ...FutureOption) *LibraryDeploymentFuture {
	o, meta := b.options(name, opts)
	f := &LibraryDeploymentFuture{
		FutureMeta:   meta,
		ContractName: name,
		Artifact:     o.artifact,
		Libraries:    o.libraries,
		From:         o.from,
	}
	b.add(f)
	return f
}

// Call adds a contract call.
func (b *ModuleBuilder) Call(contract Future, function string, args []Argument, opts ...FutureOption) *ContractCallFuture {
	o, meta := b.options(contractName(contract)+"."+function, opts)
	f := &ContractCallFuture{
		FutureMeta:   meta,
		Contract:     contract.ID(),
		FunctionName: function,
		Args:         args,
		Value:        o.value,
		From:         o.from,
	}
	b.add(f)
	return f
}

// StaticCall adds a read-only call.
func (b *ModuleBuilder) StaticCall(contract Future, function string, args []Argument, nameOrIndex string, opts ...FutureOption) *StaticCallFuture {
	o, meta := b.options(contractName(contract)+"."+function, opts)
	f := &StaticCallFuture{
		FutureMeta:   meta,
		Contract:     contract.ID(),
		FunctionName: function,
		Args:         args,
		NameOrIndex:  nameOrIndex,
		From:         o.from,
	}
	b.add(f)
	return f
}

// Encode adds an encode-function-call future.
func (b *ModuleBuilder) Encode(contract Future, function string, args []Argument, opts ...FutureOption) *EncodeFunctionCallFuture {
	_, meta := b.options("encodeFunctionCall("+contractName(contract)+"."+function+")", opts)
	f := &EncodeFunctionCallFuture{
		FutureMeta:   meta,
		Contract:     contract.ID(),
		FunctionName: function,
		Args:         args,
	}
	b.add(f)
	return f
}

// ContractAt binds name to an existing address.
func (b *ModuleBuilder) ContractAt(name string, address Argument, opts ...FutureOption) *ContractAtFuture {
	o, meta := b.options(name, opts)
	f := &ContractAtFuture{
		FutureMeta:   meta,
		ContractName: name,
		Artifact:     o.artifact,
		Address:      address,
	}
	b.add(f)
	return f
}

// ReadEventArgument reads nameOrIndex from the eventIndex-th eventName log
// emitted while executing from. A nil emitter means from itself.
func (b *ModuleBuilder) ReadEventArgument(from Future, eventName, nameOrIndex string, emitter Future, eventIndex int, opts ...FutureOption) *ReadEventArgumentFuture {
	_, meta := b.options(contractName(from)+"#"+eventName+"#"+nameOrIndex, opts)
	f := &ReadEventArgumentFuture{
		FutureMeta:       meta,
		FutureToReadFrom: from.ID(),
		EventName:        eventName,
		EventIndex:       eventIndex,
		NameOrIndex:      nameOrIndex,
	}
	if emitter != nil {
		f.Emitter = emitter.ID()
	}
	b.add(f)
	return f
}

// Send adds a raw transaction.
func (b *ModuleBuilder) Send(name string, to Argument, data string, opts ...FutureOption) *SendDataFuture {
	o, meta := b.options(name, opts)
	f := &SendDataFuture{
		FutureMeta: meta,
		To:         to,
		Data:       data,
		Value:      o.value,
		From:       o.from,
	}
	b.add(f)
	return f
}

// UseModule nests sub as a submodule.
func (b *ModuleBuilder) UseModule(sub *Module) {
	b.module.Submodules = append(b.module.Submodules, sub)
}

// Build returns the module.
func (b *ModuleBuilder) Build() *Module {
	return b.module
}

func contractName(f Future) string {
	switch v := f.(type) {
	case *ContractDeploymentFuture:
		return v.ContractName
	case *LibraryDeploymentFuture:
		return v.ContractName
	case *ContractAtFuture:
		return v.ContractName
	default:
		id := f.ID()
		for i := len(id) - 1; i >= 0; i-- {
			if id[i] == ':' {
				return id[i+1:]
			}
		}
		return id
	}
}
