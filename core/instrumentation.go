package orchestration

import (
	"go.opentelemetry.io/otel"

	"github.com/koscakluka/luna/core/logging"
)

const scopeName = "github.com/koscakluka/luna/core"

var (
	tracer = otel.Tracer(scopeName)
	logger = logging.NewLogger(scopeName)
)
