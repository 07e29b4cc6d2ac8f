// Package keymod provides functions for modifying keys.
//
// This is useful for namespacing cache keys, for example prefixing every key
// an application stores with its own name so that several applications can
// share one backend without collisions.
package keymod

// Mod is a function that modifies a key.
//
// This can be used to add prefixes or suffixes to keys.
type Mod func(string) string

// WithPrefix prepends the given prefix to the key.
//
// The separator is used to separate the prefix from the key.
//
// Example:
//
//	userPrefix := WithPrefix("user123", ":")
//	userKey := userPrefix("profile") // "user123:profile"
func WithPrefix(prefix string, separator string) Mod {
	return func(key string) string {
		if prefix == "" {
			return key
		}
		return prefix + separator + key
	}
}

// WithSuffix appends the given suffix to the key.
//
// The separator is used to separate the key from the suffix.
//
// Example:
//
//	userSuffix := WithSuffix("profile", ":")
//	userKey := userSuffix("user123") // "user123:profile"
func WithSuffix(suffix string, separator string) Mod {
	return func(key string) string {
		if suffix == "" {
			return key
		}
		return key + separator + suffix
	}
}

// WithChain chains multiple Mod functions together into a single Mod.
//
// Example:
//
//	modifier := WithChain(WithPrefix("app", ":"), WithSuffix("v2", "."))
//	key := modifier("profile") // "app:profile.v2"
func WithChain(modifiers ...Mod) Mod {
	return func(key string) string {
		for _, modifier := range modifiers {
			key = modifier(key)
		}
		return key
	}
}

// Modify applies the given Mod functions to a key.
func Modify(key string, modifiers ...Mod) string {
	for _, modifier := range modifiers {
		key = modifier(key)
	}
	return key
}
