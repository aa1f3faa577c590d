package bus

import (
	"go.opentelemetry.io/otel"

	"github.com/koscakluka/luna/core/logging"
)

const scopeName = "github.com/koscakluka/luna/core/bus"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = logging.NewLogger(scopeName)
)
