package parser

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/flowtap/internal/core"
)

// Registry maps parser names to constructors. It is filled at startup and
// read-only afterwards.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
	options      map[string]map[string]any
}

func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
		options:      make(map[string]map[string]any),
	}
}

func (r *Registry) Register(name string, c Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" || c == nil {
		return fmt.Errorf("parser registration requires a name and a constructor")
	}
	if _, exists := r.constructors[name]; exists {
		return fmt.Errorf("%w: '%s'", core.ErrParserAlreadyExists, name)
	}
	r.constructors[name] = c
	return nil
}

// Configure stores the options passed to every parser created under name.
func (r *Registry) Configure(name string, options map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.constructors[name]; !exists {
		return fmt.Errorf("%w: '%s'", core.ErrUnknownParser, name)
	}
	r.options[name] = options
	return nil
}

// Create returns a new, independent parser instance.
func (r *Registry) Create(name string) (Parser, error) {
	r.mu.RLock()
	c, exists := r.constructors[name]
	opts := r.options[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: '%s'", core.ErrUnknownParser, name)
	}
	if opts == nil {
		opts = map[string]any{}
	}

	p, err := c(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create parser '%s': %w", name, err)
	}
	return p, nil
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.constructors[name]
	return exists
}

// Names returns registered parser names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodeOptions decodes a raw option map into a typed options struct using
// mapstructure tags. Durations accept strings like "30s". Unknown keys are
// rejected so typos surface at startup.
func DecodeOptions(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("%w: parser options: %v", core.ErrConfigInvalid, err)
	}
	return nil
}
