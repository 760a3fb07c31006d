//go:generate mockgen -package=mocks -destination=../../mocks/mock_logger.go github.com/wirecap/wirecap/pkg/logging Logger

package logging

// Logger defines a common interface for logging.
// Components receive it explicitly; mocks/ holds a generated implementation for tests.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	With(keysAndValues ...interface{}) Logger
}
