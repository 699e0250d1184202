package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WASMConfig bounds a sandboxed effect module.
type WASMConfig struct {
	// MemoryLimitBytes caps the module's linear memory, rounded down to whole
	// 64 KiB pages with a floor of one page. Zero leaves the runtime's default
	// limit in place.
	MemoryLimitBytes uint64
	// CPUTimeLimit bounds wall time per execution via context deadline.
	CPUTimeLimit time.Duration
}

// WASMEffectExecutor runs an operator-supplied WebAssembly module as the
// effect driver, deny-by-default: no filesystem, no network, no environment
// variables, no ambient authority. The module reads the commitment's
// declaration as JSON on stdin and writes an ExecutionPayload-shaped JSON
// object to stdout. This lets a third-party executor be loaded as a signed
// artifact instead of compiled-in Go.
type WASMEffectExecutor struct {
	runtime wazero.Runtime
	modCfg  wazero.ModuleConfig
	wasm    []byte
	limits  WASMConfig
}

// NewWASMEffectExecutor compiles a sandbox around the given module bytes.
func NewWASMEffectExecutor(ctx context.Context, wasm []byte, cfg WASMConfig) (*WASMEffectExecutor, error) {
	if len(wasm) == 0 {
		return nil, fmt.Errorf("executor: empty wasm module")
	}

	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.MemoryLimitBytes > 0 {
		pages := uint32(cfg.MemoryLimitBytes / (64 * 1024))
		if pages == 0 {
			pages = 1
		}
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(pages)
	}

	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	// WASI with deny-by-default: only stdio is wired. No FS mounts, no
	// clock escalation, no random source.
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	modCfg := wazero.NewModuleConfig().
		WithName("substrate-effect").
		WithStartFunctions("_start")

	return &WASMEffectExecutor{
		runtime: r,
		modCfg:  modCfg,
		wasm:    wasm,
		limits:  cfg,
	}, nil
}

// wasmResult is the stdout contract of an effect module.
type wasmResult struct {
	Summary     string         `json:"summary"`
	TestsPassed uint64         `json:"tests_passed"`
	Detail      map[string]any `json:"detail,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Execute implements EffectExecutor.
func (w *WASMEffectExecutor) Execute(ctx context.Context, commitmentID string, declaration any) (ExecutionPayload, error) {
	if w.limits.CPUTimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.limits.CPUTimeLimit)
		defer cancel()
	}

	input, err := json.Marshal(map[string]any{
		"commitment_id": commitmentID,
		"declaration":   declaration,
	})
	if err != nil {
		return ExecutionPayload{}, fmt.Errorf("executor: input marshal failed: %w", err)
	}

	var stdout, stderr bytes.Buffer
	modCfg := w.modCfg.
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	module, err := w.runtime.InstantiateWithConfig(ctx, w.wasm, modCfg)
	if err != nil {
		return ExecutionPayload{}, fmt.Errorf("executor: wasm module failed: %w (stderr: %s)", err, stderr.String())
	}
	defer func() { _ = module.Close(ctx) }()

	var result wasmResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return ExecutionPayload{}, fmt.Errorf("executor: wasm module produced invalid output: %w", err)
	}
	if result.Error != "" {
		return ExecutionPayload{}, fmt.Errorf("executor: effect module reported: %s", result.Error)
	}

	return ExecutionPayload{
		Summary:     result.Summary,
		TestsPassed: result.TestsPassed,
		Detail:      result.Detail,
	}, nil
}

// Close releases the sandbox runtime.
func (w *WASMEffectExecutor) Close(ctx context.Context) error {
	return w.runtime.Close(ctx)
}
