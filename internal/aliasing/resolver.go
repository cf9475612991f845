package aliasing

import (
	"log/slog"
	"sort"
	"strings"
)

// Resolver resolves environment names using configured aliases.
// Thread-safe for concurrent use (immutable after construction).
//
// Lookup is case-insensitive and ignores surrounding whitespace: "PROD",
// "prod" and " prod " all hit the same alias. Unaliased names pass through
// unchanged. Chains resolve transitively ("production" → "prod" → "prd"),
// with cycles broken at the first repeated name.
type Resolver struct {
	aliases map[string]string
}

// maxChainDepth bounds transitive resolution so a corrupt alias map cannot
// spin the ingest path.
const maxChainDepth = 16

// NewResolver creates a resolver from config with validation.
//
// Validates:
//   - Aliases with empty name or canonical are skipped with warning
//   - Self-referential aliases are skipped with warning
//   - Circular aliases are skipped deterministically (keys processed in sorted order)
//
// Alias names are normalized to lowercase; canonical values keep their case.
// If config is nil or has no aliases, returns a no-op resolver (passthrough).
func NewResolver(cfg *Config) *Resolver {
	if cfg == nil || len(cfg.EnvironmentAliases) == 0 {
		return &Resolver{
			aliases: map[string]string{},
		}
	}

	// Sort keys so circular-alias handling does not depend on map iteration order
	keys := make([]string, 0, len(cfg.EnvironmentAliases))
	for k := range cfg.EnvironmentAliases {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	valid := make(map[string]string, len(keys))

	for _, rawName := range keys {
		name := strings.ToLower(strings.TrimSpace(rawName))
		canonical := strings.TrimSpace(cfg.EnvironmentAliases[rawName])

		if name == "" {
			slog.Warn("Skipping alias with empty environment name")

			continue
		}

		if canonical == "" {
			slog.Warn("Skipping alias with empty canonical environment",
				slog.String("alias", name))

			continue
		}

		if name == strings.ToLower(canonical) {
			slog.Warn("Skipping self-referential environment alias",
				slog.String("alias", name))

			continue
		}

		// Skip aliases whose canonical chains back to the alias name through
		// already-accepted aliases (the earlier alias wins).
		if wouldCycle(valid, name, canonical) {
			slog.Warn("Skipping circular environment alias",
				slog.String("alias", name),
				slog.String("canonical", canonical))

			continue
		}

		valid[name] = canonical

		slog.Debug("Registered environment alias",
			slog.String("alias", name),
			slog.String("canonical", canonical))
	}

	return &Resolver{
		aliases: valid,
	}
}

// wouldCycle reports whether adding name→canonical to aliases creates a loop
// back to name.
func wouldCycle(aliases map[string]string, name, canonical string) bool {
	current := strings.ToLower(canonical)

	for range maxChainDepth {
		if current == name {
			return true
		}

		next, ok := aliases[current]
		if !ok {
			return false
		}

		current = strings.ToLower(next)
	}

	return true
}

// AliasCount returns the number of registered aliases.
func (r *Resolver) AliasCount() int {
	if r == nil {
		return 0
	}

	return len(r.aliases)
}

// HasAlias reports whether an alias is registered for the given environment name.
func (r *Resolver) HasAlias(environment string) bool {
	if r == nil || environment == "" {
		return false
	}

	_, ok := r.aliases[strings.ToLower(strings.TrimSpace(environment))]

	return ok
}

// Aliases returns a copy of the registered alias map.
func (r *Resolver) Aliases() map[string]string {
	cp := make(map[string]string, len(r.aliases))
	for k, v := range r.aliases {
		cp[k] = v
	}

	return cp
}

// Resolve maps a reported environment name to its canonical form.
// Returns the original name when no alias matches.
//
// Chains are followed transitively; resolution stops at the first name with
// no alias, on a repeated name, or at the depth bound.
func (r *Resolver) Resolve(environment string) string {
	if r == nil || len(r.aliases) == 0 || environment == "" {
		return environment
	}

	current := strings.TrimSpace(environment)
	seen := make(map[string]bool, 4) //nolint:mnd // typical chain length

	for range maxChainDepth {
		key := strings.ToLower(current)
		if seen[key] {
			return current
		}

		seen[key] = true

		canonical, ok := r.aliases[key]
		if !ok {
			return current
		}

		current = canonical
	}

	return current
}
