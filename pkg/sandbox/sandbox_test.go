package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haruo/kaigi/pkg/toolexecutor"
)

func newTestInterpreter(t *testing.T) *Interpreter {
	t.Helper()
	in, err := NewInterpreter(DefaultConfig())
	require.NoError(t, err)
	return in
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, Modules(), cfg.AllowedModules)
	assert.Equal(t, 5*time.Second, cfg.MaxDuration)
	assert.Equal(t, 1024, cfg.MaxCallStack)
}

func TestModules(t *testing.T) {
	assert.Equal(t, []string{"datetime", "json", "math", "regexp", "statistics"}, Modules())
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name: "default config",
			cfg:  DefaultConfig(),
		},
		{
			name: "subset of modules",
			cfg: Config{
				AllowedModules: []string{"math", "json"},
				MaxDuration:    time.Second,
				MaxCallStack:   128,
			},
		},
		{
			name:    "zero timeout",
			cfg:     Config{AllowedModules: Modules(), MaxCallStack: 128},
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "zero call stack",
			cfg:     Config{AllowedModules: Modules(), MaxDuration: time.Second},
			wantErr: ErrInvalidCallStack,
		},
		{
			name: "module without native implementation",
			cfg: Config{
				AllowedModules: []string{"math", "os"},
				MaxDuration:    time.Second,
				MaxCallStack:   128,
			},
			wantErr: ErrUnknownModule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewInterpreter_InvalidConfig(t *testing.T) {
	_, err := NewInterpreter(Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTimeout)
}

func TestInterpreter_Run_ResultVariable(t *testing.T) {
	in := newTestInterpreter(t)

	res := in.Run(context.Background(), `result = 42;`)

	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, "42", res.Output)
}

func TestInterpreter_Run_ResultFromAllowedModule(t *testing.T) {
	in := newTestInterpreter(t)

	tests := []struct {
		name string
		code string
		want string
	}{
		{
			name: "math",
			code: `var m = require("math"); result = m.floor(42.7);`,
			want: "42",
		},
		{
			name: "statistics",
			code: `var stats = require("statistics"); result = stats.mean([2, 4, 6]);`,
			want: "4",
		},
		{
			name: "json",
			code: `var j = require("json"); result = j.parse('{"count": 7}').count;`,
			want: "7",
		},
		{
			name: "regexp",
			code: `var re = require("regexp"); result = re.findAll("[0-9]+", "a1 b22 c333");`,
			want: `["1","22","333"]`,
		},
		{
			name: "datetime",
			code: `var dt = require("datetime"); result = dt.weekday("2024-01-01");`,
			want: "Monday",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := in.Run(context.Background(), tt.code)
			require.True(t, res.Success, "error: %s", res.Error)
			assert.Equal(t, tt.want, res.Output)
		})
	}
}

func TestInterpreter_Run_NoResultMarker(t *testing.T) {
	in := newTestInterpreter(t)

	res := in.Run(context.Background(), `var x = 1 + 1;`)

	require.True(t, res.Success)
	assert.Equal(t, NoResult, res.Output)
}

func TestInterpreter_Run_DisallowedModule(t *testing.T) {
	in := newTestInterpreter(t)

	// The console.log precedes the require: if anything had executed,
	// captured console output would show up in the result metadata.
	code := `console.log("side effect");
require("fs");
result = 99;`

	res := in.Run(context.Background(), code)

	require.False(t, res.Success)
	assert.Equal(t, toolexecutor.KindValidation, res.Kind)
	assert.Contains(t, res.Error, "Module 'fs' not allowed")
	assert.Contains(t, res.Error, "Permitted modules: datetime, json, math, regexp, statistics")
	assert.Empty(t, res.Output)
	assert.Nil(t, res.Metadata)
}

func TestInterpreter_Run_DisallowedModuleInsideFunction(t *testing.T) {
	in := newTestInterpreter(t)

	// Never called, still rejected: screening is static.
	code := `function helper() { return require("child_process"); }
result = 1;`

	res := in.Run(context.Background(), code)

	require.False(t, res.Success)
	assert.Equal(t, toolexecutor.KindValidation, res.Kind)
	assert.Contains(t, res.Error, "Module 'child_process' not allowed")
}

func TestInterpreter_Run_NonLiteralRequire(t *testing.T) {
	in := newTestInterpreter(t)

	res := in.Run(context.Background(), `var name = "f" + "s"; require(name);`)

	require.False(t, res.Success)
	assert.Equal(t, toolexecutor.KindValidation, res.Kind)
	assert.Contains(t, res.Error, "string literal")
}

func TestInterpreter_Run_ModuleOutsideConfiguredSubset(t *testing.T) {
	in, err := NewInterpreter(Config{
		AllowedModules: []string{"math"},
		MaxDuration:    time.Second,
		MaxCallStack:   128,
	})
	require.NoError(t, err)

	res := in.Run(context.Background(), `var j = require("json"); result = 1;`)

	require.False(t, res.Success)
	assert.Equal(t, toolexecutor.KindValidation, res.Kind)
	assert.Contains(t, res.Error, "Module 'json' not allowed")
	assert.Contains(t, res.Error, "Permitted modules: math")
}

func TestInterpreter_Run_ImportStatementRejected(t *testing.T) {
	in := newTestInterpreter(t)

	res := in.Run(context.Background(), `import fs from "fs"; result = 1;`)

	require.False(t, res.Success)
	assert.Equal(t, toolexecutor.KindValidation, res.Kind)
}

func TestInterpreter_Run_SyntaxError(t *testing.T) {
	in := newTestInterpreter(t)

	res := in.Run(context.Background(), `result = (;`)

	require.False(t, res.Success)
	assert.Equal(t, toolexecutor.KindValidation, res.Kind)
	assert.Contains(t, res.Error, "Syntax Error")
}

func TestInterpreter_Run_EmptyCode(t *testing.T) {
	in := newTestInterpreter(t)

	res := in.Run(context.Background(), "   \n\t")

	require.False(t, res.Success)
	assert.Equal(t, toolexecutor.KindValidation, res.Kind)
}

func TestInterpreter_Run_ThrownError(t *testing.T) {
	in := newTestInterpreter(t)

	res := in.Run(context.Background(), `throw new Error("boom");`)

	require.False(t, res.Success)
	assert.Equal(t, toolexecutor.KindApplication, res.Kind)
	assert.Contains(t, res.Error, "Execution Error")
	assert.Contains(t, res.Error, "boom")
}

func TestInterpreter_Run_Timeout(t *testing.T) {
	in, err := NewInterpreter(Config{
		AllowedModules: Modules(),
		MaxDuration:    50 * time.Millisecond,
		MaxCallStack:   128,
	})
	require.NoError(t, err)

	res := in.Run(context.Background(), `while (true) {}`)

	require.False(t, res.Success)
	assert.Equal(t, toolexecutor.KindApplication, res.Kind)
	assert.Contains(t, res.Error, "timed out")
}

func TestInterpreter_Run_FreshVMPerRun(t *testing.T) {
	in := newTestInterpreter(t)

	first := in.Run(context.Background(), `leaked = "yes"; result = leaked;`)
	require.True(t, first.Success)
	assert.Equal(t, "yes", first.Output)

	second := in.Run(context.Background(), `result = (typeof leaked === "undefined") ? "unset" : "leaked";`)
	require.True(t, second.Success)
	assert.Equal(t, "unset", second.Output)
}

func TestInterpreter_Run_ConsoleCaptured(t *testing.T) {
	in := newTestInterpreter(t)

	res := in.Run(context.Background(), `console.log("checking", 42); result = 1;`)

	require.True(t, res.Success)
	require.NotNil(t, res.Metadata)
	assert.Contains(t, res.Metadata["console"], "checking 42")
}

func TestInterpreter_Run_ObjectResult(t *testing.T) {
	in := newTestInterpreter(t)

	res := in.Run(context.Background(), `result = {total: 10, items: [1, 2, 3]};`)

	require.True(t, res.Success)
	assert.JSONEq(t, `{"total": 10, "items": [1, 2, 3]}`, res.Output)
}

func TestInterpreter_Definition(t *testing.T) {
	in := newTestInterpreter(t)

	executor := toolexecutor.New()
	require.NoError(t, executor.Register(in.Definition()))

	t.Run("success", func(t *testing.T) {
		res := executor.Execute(context.Background(), "run_code", map[string]interface{}{
			"code": `result = 3 + 4;`,
		})
		require.True(t, res.Success, "error: %s", res.Error)
		assert.Equal(t, "7", res.Output)
	})

	t.Run("rejection keeps validation kind", func(t *testing.T) {
		res := executor.Execute(context.Background(), "run_code", map[string]interface{}{
			"code": `require("net");`,
		})
		require.False(t, res.Success)
		assert.Equal(t, toolexecutor.KindValidation, res.Kind)
	})

	t.Run("missing code argument", func(t *testing.T) {
		res := executor.Execute(context.Background(), "run_code", map[string]interface{}{})
		require.False(t, res.Success)
		assert.Equal(t, toolexecutor.KindValidation, res.Kind)
	})
}
