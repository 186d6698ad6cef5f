// Package log provides the logging abstraction used by spbatch components.
//
// This package defines a Logger interface that can be implemented by any
// logging library. Implementations are provided for zerolog and a no-op
// logger, which is the library default.
//
// # Usage
//
// Use the zerolog adapter with console output:
//
//	logger := log.NewZerologAdapter(zerolog.InfoLevel)
//
// Or wrap an existing zerolog.Logger:
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//
// # Custom Loggers
//
// Implement the Logger interface to integrate with your existing
// logging infrastructure:
//
//	type MyLogger struct { ... }
//
//	func (l *MyLogger) Debug(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Info(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Warn(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Error(msg string, fields ...log.Field) { ... }
package log
