package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"routa/internal/llm"
	coorderrors "routa/internal/shared/errors"
)

const configPathEnvVar = "ROUTA_CONFIG"

// File is the on-disk model configuration: the `active` key selects one of
// `configs[]` by name.
type File struct {
	Active  string                 `yaml:"active"`
	Configs []llm.NamedModelConfig `yaml:"configs"`
}

type loadOptions struct {
	envLookup func(string) (string, bool)
	readFile  func(string) ([]byte, error)
	configDir func() (string, error)
}

// Option customizes loading, mainly for tests.
type Option func(*loadOptions)

// WithEnvLookup overrides environment lookup.
func WithEnvLookup(lookup func(string) (string, bool)) Option {
	return func(o *loadOptions) { o.envLookup = lookup }
}

// WithFileReader overrides config file reading.
func WithFileReader(readFile func(string) ([]byte, error)) Option {
	return func(o *loadOptions) { o.readFile = readFile }
}

// WithConfigDir overrides the platform user-config directory.
func WithConfigDir(configDir func() (string, error)) Option {
	return func(o *loadOptions) { o.configDir = configDir }
}

// DefaultPath resolves the config file location: $ROUTA_CONFIG wins,
// otherwise <user-config-dir>/routa/models.yaml.
func DefaultPath(opts ...Option) string {
	options := loadOptions{
		envLookup: os.LookupEnv,
		configDir: os.UserConfigDir,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return resolvePath(options)
}

func resolvePath(options loadOptions) string {
	if override, ok := options.envLookup(configPathEnvVar); ok && strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override)
	}
	dir, err := options.configDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "routa", "models.yaml")
}

// Load reads the config file and returns the active model configuration with
// a normalized base URL.
func Load(opts ...Option) (llm.NamedModelConfig, error) {
	options := loadOptions{
		envLookup: os.LookupEnv,
		readFile:  os.ReadFile,
		configDir: os.UserConfigDir,
	}
	for _, opt := range opts {
		opt(&options)
	}

	path := resolvePath(options)
	if path == "" {
		return llm.NamedModelConfig{}, coorderrors.BadInput("cannot resolve the model config path")
	}

	data, err := options.readFile(path)
	if err != nil {
		return llm.NamedModelConfig{}, coorderrors.Wrap(coorderrors.KindBadInput, err,
			"cannot read model config at "+path)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return llm.NamedModelConfig{}, coorderrors.Wrap(coorderrors.KindBadInput, err,
			"model config is not valid YAML")
	}
	return ActiveConfig(file)
}

// ActiveConfig selects the active entry from a parsed file. An empty `active`
// key selects the first entry.
func ActiveConfig(file File) (llm.NamedModelConfig, error) {
	if len(file.Configs) == 0 {
		return llm.NamedModelConfig{}, coorderrors.BadInput("model config lists no configs")
	}

	selected := file.Configs[0]
	if file.Active != "" {
		found := false
		for _, cfg := range file.Configs {
			if cfg.Name == file.Active {
				selected = cfg
				found = true
				break
			}
		}
		if !found {
			return llm.NamedModelConfig{}, coorderrors.BadInput("active config %q not found", file.Active)
		}
	}

	if strings.TrimSpace(selected.Provider) == "" {
		return llm.NamedModelConfig{}, coorderrors.BadInput("config %q has no provider", selected.Name)
	}
	if strings.TrimSpace(selected.Model) == "" {
		return llm.NamedModelConfig{}, coorderrors.BadInput("config %q has no model", selected.Name)
	}

	selected.BaseURL = llm.NormalizeBaseURL(selected.BaseURL)
	return selected, nil
}
