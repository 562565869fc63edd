package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"
	"github.com/dop251/goja_nodejs/require"
	"github.com/rs/zerolog/log"

	"github.com/haruo/kaigi/pkg/toolexecutor"
)

const (
	// NoResult is returned when the code completes without assigning the
	// output variable. This is a success, not an error.
	NoResult = "no result"

	// resultVariable is the conventional global the code assigns its
	// answer to.
	resultVariable = "result"

	// consoleLimit caps captured console output per run.
	consoleLimit = 8 * 1024
)

// Config defines interpreter configuration
type Config struct {
	// AllowedModules lists the modules code may require. Every name must
	// have a native implementation; see Modules for the full set.
	AllowedModules []string `json:"allowed_modules"`

	// MaxDuration limits a single run's wall-clock time
	MaxDuration time.Duration `json:"max_duration"`

	// MaxCallStack limits JavaScript call depth
	MaxCallStack int `json:"max_call_stack"`
}

// DefaultConfig returns the default interpreter configuration
func DefaultConfig() Config {
	return Config{
		AllowedModules: Modules(),
		MaxDuration:    5 * time.Second,
		MaxCallStack:   1024,
	}
}

// ValidateConfig validates an interpreter configuration
func ValidateConfig(cfg Config) error {
	if cfg.MaxDuration <= 0 {
		return ErrInvalidTimeout
	}
	if cfg.MaxCallStack <= 0 {
		return ErrInvalidCallStack
	}
	for _, name := range cfg.AllowedModules {
		if _, ok := nativeModules[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownModule, name)
		}
	}
	return nil
}

// Interpreter runs agent-generated JavaScript inside a capability-free
// goja VM. The VM has no filesystem, network, or process bindings; the
// only host functionality reachable from code is the allow-listed module
// set exposed through require.
type Interpreter struct {
	config  Config
	allowed map[string]bool
}

// NewInterpreter creates an interpreter with the given configuration
func NewInterpreter(config Config) (*Interpreter, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	allowed := make(map[string]bool, len(config.AllowedModules))
	for _, name := range config.AllowedModules {
		allowed[name] = true
	}

	return &Interpreter{
		config:  config,
		allowed: allowed,
	}, nil
}

// Run executes one code snippet and reports the outcome as a Result.
// Disallowed requires and syntax errors are rejected before anything
// executes; a fresh VM is built per run so no state survives between
// calls. Run never panics.
func (in *Interpreter) Run(ctx context.Context, code string) (res toolexecutor.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Sandbox run panicked")
			res = toolexecutor.Fail(toolexecutor.KindApplication,
				fmt.Sprintf("Execution Error: internal fault: %v", r))
		}
	}()

	start := time.Now()

	if strings.TrimSpace(code) == "" {
		return toolexecutor.Fail(toolexecutor.KindValidation, ErrEmptyCode.Error())
	}

	prog, err := parser.ParseFile(nil, "snippet.js", code, 0)
	if err != nil {
		return toolexecutor.Fail(toolexecutor.KindValidation, fmt.Sprintf("Syntax Error: %v", err))
	}

	if msg := in.screen(prog); msg != "" {
		log.Warn().Str("reason", msg).Msg("Sandbox rejected code")
		return toolexecutor.Fail(toolexecutor.KindValidation, msg)
	}

	compiled, err := goja.CompileAST(prog, false)
	if err != nil {
		return toolexecutor.Fail(toolexecutor.KindValidation, fmt.Sprintf("Syntax Error: %v", err))
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(in.config.MaxCallStack)

	var console consoleBuffer
	if err := installConsole(vm, &console); err != nil {
		return toolexecutor.Fail(toolexecutor.KindApplication, fmt.Sprintf("Execution Error: %v", err))
	}

	registry := require.NewRegistry(require.WithLoader(denySourceLoader))
	for name, loader := range nativeModules {
		if in.allowed[name] {
			registry.RegisterNativeModule(name, loader)
		}
	}
	registry.Enable(vm)

	runCtx, cancel := context.WithTimeout(ctx, in.config.MaxDuration)
	defer cancel()

	done := make(chan struct{})
	go func() {
		select {
		case <-runCtx.Done():
			vm.Interrupt(runCtx.Err())
		case <-done:
		}
	}()

	_, err = vm.RunProgram(compiled)
	close(done)

	duration := time.Since(start)

	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				log.Error().Dur("duration", duration).Msg("Sandbox execution timed out")
				return toolexecutor.Fail(toolexecutor.KindApplication,
					fmt.Sprintf("Execution Error: execution timed out after %v", in.config.MaxDuration))
			}
			return toolexecutor.Fail(toolexecutor.KindApplication,
				fmt.Sprintf("Execution Error: %v", interrupted.Value()))
		}

		var thrown *goja.Exception
		if errors.As(err, &thrown) {
			return toolexecutor.Fail(toolexecutor.KindApplication,
				fmt.Sprintf("Execution Error: %v", thrown.Value()))
		}

		return toolexecutor.Fail(toolexecutor.KindApplication, fmt.Sprintf("Execution Error: %v", err))
	}

	out := NoResult
	if v := vm.Get(resultVariable); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		out = renderValue(v)
	}

	log.Debug().
		Dur("duration", duration).
		Int("console_bytes", console.Len()).
		Msg("Sandbox execution completed")

	result := toolexecutor.OK(out)
	if console.Len() > 0 {
		result.Metadata = map[string]interface{}{"console": console.String()}
	}
	return result
}

// Definition returns the run_code tool backed by this interpreter.
func (in *Interpreter) Definition() toolexecutor.Definition {
	return toolexecutor.Definition{
		Name: "run_code",
		Description: fmt.Sprintf(
			"Execute JavaScript for calculations and data analysis. Only these modules may be "+
				"required: %s. Assign the answer to a variable named %q.",
			strings.Join(sortedNames(in.allowed), ", "), resultVariable),
		Parameters: []toolexecutor.Parameter{
			{Name: "code", Type: "string", Description: "JavaScript source to execute", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			code, _ := args["code"].(string)
			res := in.Run(ctx, code)
			if !res.Success {
				return nil, toolexecutor.Errorf(res.Kind, "run_code", "%s", res.Error)
			}
			return res.Output, nil
		},
	}
}

// denySourceLoader refuses all filesystem module resolution, leaving the
// registered native modules as the only loadable names.
func denySourceLoader(path string) ([]byte, error) {
	return nil, require.ModuleFileDoesNotExistError
}

// renderValue renders the output variable as text. Strings pass through,
// everything else renders as compact JSON.
func renderValue(v goja.Value) string {
	exported := v.Export()
	if s, ok := exported.(string); ok {
		return s
	}
	b, err := json.Marshal(exported)
	if err != nil {
		return fmt.Sprintf("%v", exported)
	}
	return string(b)
}

type consoleBuffer struct {
	buf strings.Builder
}

func (c *consoleBuffer) writeLine(line string) {
	if c.buf.Len() >= consoleLimit {
		return
	}
	c.buf.WriteString(line)
	c.buf.WriteByte('\n')
}

func (c *consoleBuffer) Len() int { return c.buf.Len() }

func (c *consoleBuffer) String() string { return c.buf.String() }

func installConsole(vm *goja.Runtime, sink *consoleBuffer) error {
	console := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		sink.writeLine(joinArgs(call.Arguments))
		return goja.Undefined()
	}
	if err := console.Set("log", logFn); err != nil {
		return err
	}
	if err := console.Set("error", logFn); err != nil {
		return err
	}
	return vm.Set("console", console)
}

func joinArgs(args []goja.Value) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil || goja.IsUndefined(a) || goja.IsNull(a) {
			continue
		}
		parts = append(parts, a.String())
	}
	return strings.Join(parts, " ")
}

func sortedNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
