package target

// ModuleHandle is an opaque reference to a module an Engine has loaded,
// returned by LoadCore/AddModule and passed back into the load-address
// and file-address calls. TargetAssembler never inspects it.
type ModuleHandle interface{}

// Engine is the debugger collaborator TargetAssembler drives to turn a
// resolved DumpMeta into a running target. It is explicitly out of
// scope as a concrete implementation (spec.md §1: "a debugger engine,
// assumed available as a library") — production wiring is left to the
// caller that constructs a TargetAssembler; this package bundles no
// implementation of Engine, only the interface and the assembler logic
// grounded on original_source/reader/LoadDump.cpp's use of its own
// debugger host.
type Engine interface {
	// SetInternalVariable configures a debugger-wide setting before
	// CreateTarget, e.g. "target.preload-symbols" -> "false".
	SetInternalVariable(name, value string) error

	// CreateTarget creates the target for executablePath on the given
	// triple (e.g. "x86_64-apple-macosx"). addDependentModules controls
	// whether the engine eagerly resolves the executable's own
	// dependent libraries, which TargetAssembler always disables: every
	// module is supplied explicitly from the dump's module list.
	CreateTarget(executablePath, triple string, addDependentModules bool) error

	// LoadCore loads the Mach-O core at corePath into the current
	// target and returns the modules the engine auto-loaded from it
	// (normally exactly the main executable).
	LoadCore(corePath string) ([]ModuleHandle, error)

	// AddModule adds path as a module on triple. uuid, when non-empty,
	// constrains the match to that UUID; symbolPath, when non-empty,
	// is a symbol file (e.g. a dSYM bundle) to attach.
	AddModule(path, triple, uuid, symbolPath string) (ModuleHandle, error)

	// SetModuleLoadAddress slides m so its base sits at loadAddress.
	SetModuleLoadAddress(m ModuleHandle, loadAddress uint64) error

	// ModuleFileAddress returns the file address m's Mach-O header
	// records, needed to compute the slide for a module LoadCore
	// already auto-loaded.
	ModuleFileAddress(m ModuleHandle) (uint64, error)

	// NumThreads returns the number of threads the loaded core exposes.
	NumThreads() (int, error)

	// SetSelectedThread selects the thread at index as current.
	SetSelectedThread(index int) error

	// RunCommandInterpreter hands control to the engine's interactive
	// command loop. Returns once the user ends the session.
	RunCommandInterpreter() error
}
