package desktop

import "github.com/koscakluka/luna/core/logging"

const scopeName = "github.com/koscakluka/luna/core/tools/desktop"

var logger = logging.NewLogger(scopeName)
