package bus

import (
	"clinic-chat-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
)

// watermillLogger adapts logger.ILogger to watermill.LoggerAdapter.
type watermillLogger struct {
	logger logger.ILogger
	fields watermill.LogFields
}

func NewWatermillLogger(l logger.ILogger) watermill.LoggerAdapter {
	return &watermillLogger{logger: l}
}

func (w *watermillLogger) details(fields watermill.LogFields) map[string]interface{} {
	return w.fields.Add(fields)
}

func (w *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	details := w.details(fields)
	if err != nil {
		details["error"] = err.Error()
	}
	w.logger.Error("WATERMILL", msg, details)
}

func (w *watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.logger.Info("WATERMILL", msg, w.details(fields))
}

func (w *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.logger.Debug("WATERMILL", msg, w.details(fields))
}

func (w *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.logger.Debug("WATERMILL", msg, w.details(fields))
}

func (w *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{logger: w.logger, fields: w.fields.Add(fields)}
}
