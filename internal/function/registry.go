package function

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type Factory func(types []ArgType, opts ...Option) (*Function, error)

var (
	regMu sync.RWMutex
	reg   = map[string]Factory{}
)

func init() {
	Register(Name, Bind)
}

// Register makes a factory available under name (case-insensitive). A later
// registration under the same name replaces the earlier one.
func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	reg[strings.ToLower(strings.TrimSpace(name))] = f
}

// New binds the function registered under name to the declared argument types.
func New(name string, types []ArgType, opts ...Option) (*Function, error) {
	regMu.RLock()
	f, ok := reg[strings.ToLower(strings.TrimSpace(name))]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}
	return f(types, opts...)
}

func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(reg))
	for n := range reg {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
