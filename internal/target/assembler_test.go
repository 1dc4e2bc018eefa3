package target

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/think-cell/minidump/pkg/minidump"
	"github.com/think-cell/minidump/pkg/symcache"
)

// fakeEngine records calls and returns a single auto-loaded module from
// LoadCore, enough to drive TargetAssembler.Load end to end.
type fakeEngine struct {
	vars         map[string]string
	created      string
	addedModules []string
	loadAddrs    []uint64
	selectedIdx  int
	numThreads   int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{vars: map[string]string{}, numThreads: 2}
}

func (f *fakeEngine) SetInternalVariable(name, value string) error {
	f.vars[name] = value
	return nil
}
func (f *fakeEngine) CreateTarget(executablePath, triple string, addDependentModules bool) error {
	f.created = executablePath
	return nil
}
func (f *fakeEngine) LoadCore(corePath string) ([]ModuleHandle, error) {
	return []ModuleHandle{"exe-module"}, nil
}
func (f *fakeEngine) AddModule(path, triple, uuid, symbolPath string) (ModuleHandle, error) {
	f.addedModules = append(f.addedModules, path)
	return path, nil
}
func (f *fakeEngine) SetModuleLoadAddress(m ModuleHandle, loadAddress uint64) error {
	f.loadAddrs = append(f.loadAddrs, loadAddress)
	return nil
}
func (f *fakeEngine) ModuleFileAddress(m ModuleHandle) (uint64, error) { return 0, nil }
func (f *fakeEngine) NumThreads() (int, error)                         { return f.numThreads, nil }

func (f *fakeEngine) SetSelectedThread(index int) error {
	f.selectedIdx = index
	return nil
}

func (f *fakeEngine) RunCommandInterpreter() error { return nil }

const testExecUUID = "c4cbd2cf-39d5-3185-851e-85c7dd2f8c7f"

func writeArtifactWithModules(t *testing.T, path string, modules []minidump.ModuleRecord) {
	t.Helper()
	meta := minidump.DumpMeta{
		BuildVersion:       "1.0",
		ExecutablePath:     "MyApp.app/Contents/MacOS/MyApp",
		BundleVersion:      "1.0",
		CrashedThreadIndex: 1,
		Modules:            modules,
	}
	envelope, err := minidump.EncodeEnvelope(meta)
	if err != nil {
		t.Fatal(err)
	}

	var core bytes.Buffer
	w := minidump.CoreWriter{Source: nil}
	if _, err := w.WriteCore(&core, nil, nil); err != nil {
		t.Fatal(err)
	}

	payload := append(envelope, core.Bytes()...)
	if err := minidump.WriteArtifact(path, payload); err != nil {
		t.Fatal(err)
	}
}

func newAssembler(t *testing.T, home string) (*TargetAssembler, *fakeEngine) {
	t.Helper()
	cache, err := symcache.NewBinaryCache(8)
	if err != nil {
		t.Fatal(err)
	}
	engine := newFakeEngine()
	return &TargetAssembler{
		Engine:      engine,
		UuidIndex:   symcache.UuidIndex{Root: filepath.Join(home, "uuids")},
		SymbolIndex: symcache.SymbolIndex{Root: filepath.Join(home, "symbols")},
		Cache:       cache,
		CacheRoot:   filepath.Join(home, "cache"),
		Home:        home,
	}, engine
}

func TestLoadRejectsExecutableNotFirst(t *testing.T) {
	home := t.TempDir()
	artifact := filepath.Join(home, "dump.zip")
	writeArtifactWithModules(t, artifact, []minidump.ModuleRecord{
		{Path: "SomeOtherLib.dylib", StartAddress: 0x1000, UUID: testExecUUID},
	})

	assembler, _ := newAssembler(t, home)
	err := assembler.Load(artifact)
	if err == nil {
		t.Fatal("Load() succeeded, want LoadFailed for executable-not-first")
	}
	var lf *LoadFailed
	if !isLoadFailed(err, &lf) {
		t.Fatalf("error = %v (%T), want *LoadFailed", err, err)
	}
}

func TestLoadToleratesMalformedModuleUUID(t *testing.T) {
	home := t.TempDir()

	// Publish the executable's uuid index entry and its mounted source
	// binary so the executable module resolves.
	uidx := symcache.UuidIndex{Root: filepath.Join(home, "uuids")}
	if err := uidx.Write(testExecUUID, "exe-rel"); err != nil {
		t.Fatal(err)
	}
	execSrc := filepath.Join(home, "mnt", "exe-rel")
	if err := os.MkdirAll(filepath.Dir(execSrc), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(execSrc, []byte("binary"), 0o644); err != nil {
		t.Fatal(err)
	}

	artifact := filepath.Join(home, "dump.zip")
	writeArtifactWithModules(t, artifact, []minidump.ModuleRecord{
		{Path: "MyApp.app/Contents/MacOS/MyApp", StartAddress: 0x1000, UUID: testExecUUID},
		{Path: "BadLib.dylib", StartAddress: 0x2000, UUID: "not-a-uuid"},
	})

	assembler, engine := newAssembler(t, home)
	if err := assembler.Load(artifact); err != nil {
		t.Fatalf("Load() error: %v, want success despite malformed module uuid", err)
	}
	if len(engine.addedModules) != 0 {
		t.Errorf("addedModules = %v, want none: the malformed-uuid module must be skipped, not added", engine.addedModules)
	}
}

func isLoadFailed(err error, target **LoadFailed) bool {
	lf, ok := err.(*LoadFailed)
	if ok {
		*target = lf
	}
	return ok
}
