package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// hclFile is the decoding target of a configuration file. Unset attributes
// stay nil and leave lower layers untouched.
type hclFile struct {
	CacheDir     *string `hcl:"cache_dir,optional"`
	CacheRead    *bool   `hcl:"cache_read,optional"`
	CacheWrite   *bool   `hcl:"cache_write,optional"`
	CacheBackend *string `hcl:"cache_backend,optional"`

	Model          *string `hcl:"model,optional"`
	APIBase        *string `hcl:"api_base,optional"`
	APIKey         *string `hcl:"api_key,optional"`
	RequestTimeout *string `hcl:"request_timeout,optional"`

	CompilerCommand []string `hcl:"compiler_command,optional"`
	RunnerCommand   []string `hcl:"runner_command,optional"`

	MaxRetries *int    `hcl:"max_retries,optional"`
	RetryDelay *string `hcl:"retry_delay,optional"`
	EventsURL  *string `hcl:"events_url,optional"`
}

// evalContext exposes env as the `env` object.
func evalContext(env map[string]string) *hcl.EvalContext {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vals := make(map[string]cty.Value, len(env))
	for _, k := range keys {
		vals[k] = cty.StringVal(env[k])
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(vals)},
	}
}

// applyFile decodes the HCL file at path onto s.
func applyFile(s *Settings, parser *hclparse.Parser, path string, env map[string]string) error {
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse config file %s: %w", path, diags)
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, evalContext(env), &parsed); diags.HasErrors() {
		return fmt.Errorf("failed to decode config file %s: %w", path, diags)
	}
	return parsed.apply(s, path)
}

func (f *hclFile) apply(s *Settings, path string) error {
	setString(&s.CacheDir, f.CacheDir)
	setBool(&s.CacheRead, f.CacheRead)
	setBool(&s.CacheWrite, f.CacheWrite)
	setString(&s.CacheBackend, f.CacheBackend)
	setString(&s.Model, f.Model)
	setString(&s.APIBase, f.APIBase)
	setString(&s.APIKey, f.APIKey)
	setString(&s.EventsURL, f.EventsURL)
	if f.CompilerCommand != nil {
		s.CompilerCommand = f.CompilerCommand
	}
	if f.RunnerCommand != nil {
		s.RunnerCommand = f.RunnerCommand
	}
	if f.MaxRetries != nil {
		s.MaxRetries = *f.MaxRetries
	}
	if err := setDuration(&s.RetryDelay, f.RetryDelay); err != nil {
		return fmt.Errorf("%s: retry_delay: %w", path, err)
	}
	if err := setDuration(&s.RequestTimeout, f.RequestTimeout); err != nil {
		return fmt.Errorf("%s: request_timeout: %w", path, err)
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
