package miniaudio

import "github.com/koscakluka/luna/core/logging"

const scopeName = "github.com/koscakluka/luna/core/audio/miniaudio"

var logger = logging.NewLogger(scopeName)
