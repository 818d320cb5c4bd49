// Package logger wraps zap for the release pipeline:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and a per-logger level override used for tool output,
//   - convenience functions (Info, WarnKV, ...).
//
// Every stage receives a context and logs through the logger stored in it, so
// stage names and run identifiers follow each message.
package logger
