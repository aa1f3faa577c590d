// Package desktop provides tools that act on the local desktop session.
package desktop

import "github.com/koscakluka/luna/internal/utils"

// Runner executes an external command and returns its standard output.
type Runner = utils.Runner
