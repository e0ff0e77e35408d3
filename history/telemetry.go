package history

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
)

const name = "github.com/ocuroot/gitdrop/history"

var (
	tracer = otel.Tracer(name)
	logger = otelslog.NewLogger(name)
)
