package pattern

import (
	"errors"
	"fmt"
	"strings"
)

// LoadingStrategy selects how the runtime obtains a requested module. The zero
// value is not a valid strategy.
type LoadingStrategy uint8

const (
	// AsynchronousModule loads the module's chunk first, as `import()` does.
	AsynchronousModule LoadingStrategy = iota + 1
	// SynchronousModule expects the module to be available already, as static
	// imports and `require` do.
	SynchronousModule
)

var ErrUnknownLoadingStrategy = errors.New("unknown loading strategy")

func (s LoadingStrategy) Valid() bool {
	return s == AsynchronousModule || s == SynchronousModule
}

func (s LoadingStrategy) String() string {
	switch s {
	case AsynchronousModule:
		return "async-module"
	case SynchronousModule:
		return "sync-module"
	default:
		return fmt.Sprintf("LoadingStrategy(%d)", uint8(s))
	}
}

func ParseLoadingStrategy(value string) (LoadingStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "async-module", "async", "esm-async":
		return AsynchronousModule, nil
	case "sync-module", "sync", "cjs":
		return SynchronousModule, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownLoadingStrategy, value)
	}
}

func (s LoadingStrategy) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLoadingStrategy, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *LoadingStrategy) UnmarshalText(text []byte) error {
	parsed, err := ParseLoadingStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
