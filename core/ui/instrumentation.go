package ui

import "github.com/koscakluka/luna/core/logging"

const scopeName = "github.com/koscakluka/luna/core/ui"

var logger = logging.NewLogger(scopeName)
