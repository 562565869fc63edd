package sandbox

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

// nativeModules is the full set of modules the sandbox can expose. Each
// is implemented in Go; no module touches the filesystem, network, or
// process state.
var nativeModules = map[string]require.ModuleLoader{
	"math":       mathLoader,
	"statistics": statisticsLoader,
	"datetime":   datetimeLoader,
	"json":       jsonLoader,
	"regexp":     regexpLoader,
}

// Modules returns the names of all available native modules, sorted.
func Modules() []string {
	names := make([]string, 0, len(nativeModules))
	for name := range nativeModules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func mathLoader(vm *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)
	_ = exports.Set("pi", math.Pi)
	_ = exports.Set("e", math.E)
	_ = exports.Set("abs", math.Abs)
	_ = exports.Set("ceil", math.Ceil)
	_ = exports.Set("floor", math.Floor)
	_ = exports.Set("round", math.Round)
	_ = exports.Set("trunc", math.Trunc)
	_ = exports.Set("sqrt", math.Sqrt)
	_ = exports.Set("cbrt", math.Cbrt)
	_ = exports.Set("pow", math.Pow)
	_ = exports.Set("exp", math.Exp)
	_ = exports.Set("log", math.Log)
	_ = exports.Set("log2", math.Log2)
	_ = exports.Set("log10", math.Log10)
	_ = exports.Set("sin", math.Sin)
	_ = exports.Set("cos", math.Cos)
	_ = exports.Set("tan", math.Tan)
	_ = exports.Set("hypot", math.Hypot)
}

func statisticsLoader(vm *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)
	_ = exports.Set("sum", statsSum)
	_ = exports.Set("mean", statsMean)
	_ = exports.Set("median", statsMedian)
	_ = exports.Set("variance", statsVariance)
	_ = exports.Set("stdev", statsStdev)
	_ = exports.Set("min", statsMin)
	_ = exports.Set("max", statsMax)
}

func statsSum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func statsMean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("mean requires at least one data point")
	}
	return statsSum(values) / float64(len(values)), nil
}

func statsMedian(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("median requires at least one data point")
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2, nil
	}
	return sorted[mid], nil
}

// statsVariance is the sample variance (n-1 denominator).
func statsVariance(values []float64) (float64, error) {
	if len(values) < 2 {
		return 0, fmt.Errorf("variance requires at least two data points")
	}
	mean, _ := statsMean(values)
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return sq / float64(len(values)-1), nil
}

func statsStdev(values []float64) (float64, error) {
	variance, err := statsVariance(values)
	if err != nil {
		return 0, fmt.Errorf("stdev requires at least two data points")
	}
	return math.Sqrt(variance), nil
}

func statsMin(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("min requires at least one data point")
	}
	out := values[0]
	for _, v := range values[1:] {
		if v < out {
			out = v
		}
	}
	return out, nil
}

func statsMax(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("max requires at least one data point")
	}
	out := values[0]
	for _, v := range values[1:] {
		if v > out {
			out = v
		}
	}
	return out, nil
}

const dateOnlyLayout = "2006-01-02"

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	dateOnlyLayout,
}

func datetimeLoader(vm *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)
	_ = exports.Set("now", func() string { return time.Now().Format(time.RFC3339) })
	_ = exports.Set("today", func() string { return time.Now().Format(dateOnlyLayout) })
	_ = exports.Set("parse", datetimeParse)
	_ = exports.Set("addDays", datetimeAddDays)
	_ = exports.Set("diffDays", datetimeDiffDays)
	_ = exports.Set("weekday", datetimeWeekday)
}

func parseDatetime(value string) (time.Time, string, error) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, layout, nil
		}
	}
	return time.Time{}, "", fmt.Errorf("unrecognized date/time value %q", value)
}

func datetimeParse(value string) (string, error) {
	t, _, err := parseDatetime(value)
	if err != nil {
		return "", err
	}
	return t.Format(time.RFC3339), nil
}

func datetimeAddDays(value string, days int) (string, error) {
	t, layout, err := parseDatetime(value)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, days).Format(layout), nil
}

func datetimeDiffDays(from, to string) (int, error) {
	a, _, err := parseDatetime(from)
	if err != nil {
		return 0, err
	}
	b, _, err := parseDatetime(to)
	if err != nil {
		return 0, err
	}
	return int(b.Sub(a).Hours() / 24), nil
}

func datetimeWeekday(value string) (string, error) {
	t, _, err := parseDatetime(value)
	if err != nil {
		return "", err
	}
	return t.Weekday().String(), nil
}

func jsonLoader(vm *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)
	_ = exports.Set("parse", func(text string) (interface{}, error) {
		var out interface{}
		if err := json.Unmarshal([]byte(text), &out); err != nil {
			return nil, fmt.Errorf("invalid JSON: %v", err)
		}
		return out, nil
	})
	_ = exports.Set("stringify", func(v interface{}) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	})
}

func regexpLoader(vm *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)
	_ = exports.Set("test", func(pattern, text string) (bool, error) {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(text), nil
	})
	_ = exports.Set("find", func(pattern, text string) (string, error) {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return "", err
		}
		return re.FindString(text), nil
	})
	_ = exports.Set("findAll", func(pattern, text string) ([]string, error) {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		return re.FindAllString(text, -1), nil
	})
	_ = exports.Set("replace", func(pattern, text, replacement string) (string, error) {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return "", err
		}
		return re.ReplaceAllString(text, replacement), nil
	})
}
