package target

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/think-cell/minidump/internal/utils"
	"github.com/think-cell/minidump/pkg/minidump"
	"github.com/think-cell/minidump/pkg/symcache"
)

const coreTriple = "x86_64-apple-macosx"

// TargetAssembler turns a DumpArtifact into a running target by driving
// an Engine, resolving every module's binary and symbol file through
// the uuid/symbol indices and a local BinaryCache (spec.md §4.8).
//
// Grounded on original_source/reader/LoadDump.cpp's SDebugger
// constructor.
type TargetAssembler struct {
	Engine Engine

	UuidIndex   symcache.UuidIndex
	SymbolIndex symcache.SymbolIndex
	Cache       *symcache.BinaryCache
	CacheRoot   string

	// Home is the caller's home directory: module binaries are mounted
	// at Home/mnt/<path read from the uuid index>, and symbol files referenced as "~/..."
	// are resolved relative to it.
	Home string

	// MountSource, when set, mounts the source server volume named by
	// SourceServerURL + the symbol file's recorded suffix before the
	// symbol bundle is cached (spec.md §4.8 step c).
	MountSource     bool
	SourceServerURL string
}

// Load implements spec.md §4.8's full sequence: unpack artifactPath,
// resolve and configure every module, and select the crashed thread.
// It does not run the command interpreter; call Run for that.
func (a *TargetAssembler) Load(artifactPath string) error {
	payload, err := minidump.ReadArtifact(artifactPath)
	if err != nil {
		return &LoadFailed{Reason: "read artifact", Cause: err}
	}

	envelope, core, err := minidump.SplitEnvelope(payload)
	if err != nil {
		return &LoadFailed{Reason: "split envelope", Cause: err}
	}

	meta, err := minidump.DecodeEnvelope(envelope)
	if err != nil {
		return &LoadFailed{Reason: "decode envelope", Cause: err}
	}

	if len(meta.Modules) == 0 {
		return &LoadFailed{Reason: "envelope has no modules"}
	}

	// The executable-first invariant is asserted before any filesystem
	// access (original_source/reader/LoadDump.cpp: the ends_with check
	// happens before LookupBinaryAndSymbol is ever called).
	if !strings.HasSuffix(meta.Modules[0].Path, meta.ExecutablePath) {
		return &LoadFailed{Reason: "first module is not the recorded executable"}
	}

	binaryPath, symbolPath, err := a.resolveModule(meta.Modules[0].UUID)
	if err != nil {
		return &LoadFailed{Reason: "resolve executable module", Cause: err}
	}
	if binaryPath == "" {
		return &LoadFailed{Reason: "executable binary not found: " + meta.Modules[0].Path}
	}

	if err := a.Engine.SetInternalVariable("target.preload-symbols", "false"); err != nil {
		return &LoadFailed{Reason: "configure preload-symbols", Cause: err}
	}
	if err := a.Engine.SetInternalVariable("symbols.enable-external-lookup", "false"); err != nil {
		return &LoadFailed{Reason: "configure external symbol lookup", Cause: err}
	}

	if err := a.Engine.CreateTarget(binaryPath, coreTriple, false); err != nil {
		return &LoadFailed{Reason: "create target", Cause: err}
	}
	if symbolPath != "" {
		if _, err := a.Engine.AddModule(binaryPath, coreTriple, meta.Modules[0].UUID, symbolPath); err != nil {
			log.WithError(err).Warn("failed to attach symbol file to executable module")
		}
	}

	scratch, err := writeScratchCore(core)
	if err != nil {
		return &LoadFailed{Reason: "write scratch core", Cause: err}
	}
	defer os.Remove(scratch)

	loaded, err := a.Engine.LoadCore(scratch)
	if err != nil {
		return &LoadFailed{Reason: "load core", Cause: err}
	}
	if len(loaded) != 1 {
		return &LoadFailed{Reason: "core auto-loaded an unexpected number of modules"}
	}

	fileAddr, err := a.Engine.ModuleFileAddress(loaded[0])
	if err != nil {
		return &LoadFailed{Reason: "read executable module file address", Cause: err}
	}
	slide := meta.Modules[0].StartAddress - fileAddr
	if err := a.Engine.SetModuleLoadAddress(loaded[0], slide); err != nil {
		return &LoadFailed{Reason: "slide executable module", Cause: err}
	}

	numThreads, err := a.Engine.NumThreads()
	if err != nil {
		return &LoadFailed{Reason: "read thread count", Cause: err}
	}
	if meta.CrashedThreadIndex >= numThreads {
		return &LoadFailed{Reason: "crashed thread index out of range"}
	}
	if err := a.Engine.SetSelectedThread(meta.CrashedThreadIndex); err != nil {
		return &LoadFailed{Reason: "select crashed thread", Cause: err}
	}

	for _, m := range meta.Modules[1:] {
		binaryPath, symbolPath, err := a.resolveModule(m.UUID)
		if err != nil {
			log.WithError(err).WithField("module", m.Path).Warn("failed to resolve module")
			continue
		}
		if binaryPath == "" {
			log.WithField("module", m.Path).Warn("module binary not found, skipping")
			continue
		}

		handle, err := a.Engine.AddModule(binaryPath, coreTriple, "", symbolPath)
		if err != nil {
			log.WithError(err).WithField("module", m.Path).Warn("failed to add module")
			continue
		}
		if err := a.Engine.SetModuleLoadAddress(handle, m.StartAddress); err != nil {
			log.WithError(err).WithField("module", m.Path).Warn("failed to set module load address")
		}
	}

	return nil
}

// Run hands control to the engine's command interpreter. Call after a
// successful Load.
func (a *TargetAssembler) Run() error {
	return a.Engine.RunCommandInterpreter()
}

// resolveModule implements spec.md §4.8's resolveModule(uuid) ->
// (binaryPath, symbolPath): an empty binaryPath with a nil error means
// the module is not an error, just unavailable (a malformed or unindexed
// uuid, or no binary at the mounted source path). Load fails on an
// unavailable executable and logs and skips any other unavailable module;
// a malformed uuid does not change the kind of error Load later returns.
func (a *TargetAssembler) resolveModule(uuid string) (binaryPath, symbolPath string, err error) {
	rel, err := a.UuidIndex.Lookup(uuid)
	if err != nil {
		var malformed *symcache.MalformedUuid
		var missing *symcache.ErrMissing
		if errors.As(err, &malformed) || errors.As(err, &missing) {
			return "", "", nil
		}
		return "", "", err
	}

	binarySource := filepath.Join(a.Home, "mnt", rel)

	symbolPath, err = a.resolveSymbol(uuid)
	if err != nil {
		log.WithError(err).WithField("uuid", uuid).Warn("failed to resolve symbol file")
		symbolPath = ""
	}

	cachedBinary, err := a.Cache.Cache(binarySource, filepath.Join(a.CacheRoot, "binaries", uuid))
	if err != nil {
		return "", "", err
	}
	if cachedBinary == symcache.NotCached {
		return "", "", nil
	}
	return cachedBinary, symbolPath, nil
}

// resolveSymbol implements step (c) of resolveModule: look up the
// symbol record, optionally mount the source volume, and cache the
// dSYM bundle directory, returning the path to the DWARF file inside
// the cached copy.
func (a *TargetAssembler) resolveSymbol(uuid string) (string, error) {
	rec, err := a.SymbolIndex.Lookup(uuid)
	if err != nil {
		var missing *symcache.ErrMissing
		if errors.As(err, &missing) {
			return "", nil
		}
		return "", err
	}

	bundleRoot := symcache.DSymBundleRoot(rec.DSymInternalPath)
	suffix := strings.TrimPrefix(rec.DSymInternalPath, bundleRoot)

	if a.MountSource && rec.SourceMount != "" {
		if err := utils.MountSourceVolume(a.SourceServerURL + rec.SourceMount); err != nil {
			log.WithError(err).Warn("failed to mount source volume")
		}
	}

	bundleSource := filepath.Join(a.Home, strings.TrimPrefix(bundleRoot, "~"))
	cachedBundle, err := a.Cache.Cache(bundleSource, filepath.Join(a.CacheRoot, "symbols", uuid+".dSYM"))
	if err != nil {
		return "", err
	}
	if cachedBundle == symcache.NotCached {
		return "", nil
	}
	return cachedBundle + suffix, nil
}

func writeScratchCore(core []byte) (string, error) {
	f, err := os.CreateTemp("", "minidump-core-*")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(core); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
