// Package events defines the notifications exchanged over the bus.
//
// Event kinds are grouped by producer-facing namespaces:
//
//   - user_input
//   - agent.*
//   - tool.*
//   - audio.*
//   - tts.*
//   - system.*
//
// Every event carries a unique id, a creation timestamp, an optional
// correlation id and a free-form payload. Constructors in this package fill
// the payload keys receivers rely on; custom kinds can be built with New.
//
// user_input
//
//   - UserInput (user_input): text entered or transcribed. Payload keys
//     "text" and "source" ("text" or "voice").
//
// agent events
//
//   - AgentResponse (agent.response): assistant reply. Payload keys
//     "text", "type" ("conversation" or "tool_result") and, for tool
//     results, "tool_name" and "success".
//   - AgentError (agent.error): request processing failed. Payload key
//     "error".
//
// tool events
//
//   - ToolStarted (tool.started), ToolCompleted (tool.completed) and
//     ToolFailed (tool.failed) bracket a single tool execution.
//
// audio events
//
//   - audio.recording_started, audio.recording_stopped,
//     audio.speech_started, audio.transcription_started,
//     audio.transcription_completed, audio.transcription_failed,
//     audio.status_changed and audio.error.
//
// tts events
//
//   - tts.speech_started, tts.speech_completed and tts.speech_failed.
//
// system events
//
//   - SystemShutdown (system.shutdown): the application should stop.
//   - ServiceStatus (system.service_status): a service changed status.
package events
