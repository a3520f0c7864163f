// internal/inspector/panic.go
package inspector

import (
	"log/slog"
	"runtime/debug"

	"github.com/solatis/schemainspector/internal/types"
)

// recoverPanic must be deferred directly by an entry point.
func (i *Inspector) recoverPanic(op string) {
	if r := recover(); r != nil {
		handlePanic(i.cfg.Env, i.logger, op, r)
	}
}

// handlePanic logs a recovered panic. In prod the panic ends there; in dev
// and staging it is raised again.
func handlePanic(env types.Env, logger *slog.Logger, op string, r any) {
	logger.Error("inspector panic",
		"op", op,
		"env", env,
		"panic", r,
		"stack", string(debug.Stack()),
	)
	if env.IsDevelopment() {
		panic(r)
	}
}
