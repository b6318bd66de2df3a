// Package logx wraps zerolog behind a small Field-based API so the rest of
// the codebase does not depend on zerolog directly and sinks can be swapped
// at runtime when the config file changes.
package logx
