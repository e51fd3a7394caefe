package config

import (
	"embed"
	"sync"
	"time"

	"github.com/fourkites/rca-engine/pkg/adapter"
	"github.com/fourkites/rca-engine/pkg/adapter/builtin"
	"github.com/fourkites/rca-engine/pkg/pattern"
)

//go:embed patterns.yaml
var builtinPatternsFS embed.FS

var (
	builtinOnce     sync.Once
	builtinAdapters map[string]adapter.Config
	builtinPatterns []pattern.Pattern
)

// GetBuiltinAdapters returns the built-in per-adapter defaults (lazy,
// thread-safe singleton, same idiom as the teacher's GetBuiltinConfig):
// every name in builtin.Names, disabled until a user file turns one on and
// supplies its endpoint/credentials.
func GetBuiltinAdapters() map[string]adapter.Config {
	builtinOnce.Do(initBuiltin)
	return builtinAdapters
}

// GetBuiltinPatterns returns the shipped pattern library (patterns.yaml,
// embedded into the binary).
func GetBuiltinPatterns() []pattern.Pattern {
	builtinOnce.Do(initBuiltin)
	return builtinPatterns
}

func initBuiltin() {
	builtinAdapters = make(map[string]adapter.Config, len(builtin.Names))
	for _, name := range builtin.Names {
		builtinAdapters[name] = adapter.Config{
			Name:    name,
			Enabled: false,
			Timeout: 10 * time.Second,
			Retry:   adapter.RetryPolicy{MaxAttempts: 2, BaseMS: 200, MaxMS: 2000},
		}
	}

	data, err := builtinPatternsFS.ReadFile("patterns.yaml")
	if err != nil {
		// The file is embedded at build time; a read failure here means
		// the embed itself is broken, not a runtime condition to recover
		// from.
		panic("config: embedded patterns.yaml: " + err.Error())
	}
	patterns, err := pattern.LoadYAML(data)
	if err != nil {
		panic("config: parse embedded patterns.yaml: " + err.Error())
	}
	builtinPatterns = patterns
}
