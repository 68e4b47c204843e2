package logger

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

type ZerologHandler struct {
	logger zerolog.Logger
}

func NewZerolog(l zerolog.Logger) *ZerologHandler {
	return &ZerologHandler{logger: l}
}

// NewConsole writes human readable lines to w, used by the CLI.
func NewConsole(w io.Writer, level zerolog.Level) *ZerologHandler {
	l := zerolog.New(zerolog.ConsoleWriter{Out: w}).Level(level).With().Timestamp().Logger()
	return &ZerologHandler{logger: l}
}

func (handler *ZerologHandler) Error(msg string, args ...any) {
	handler.emit(handler.logger.Error(), msg, args)
}

func (handler *ZerologHandler) Warn(msg string, args ...any) {
	handler.emit(handler.logger.Warn(), msg, args)
}

func (handler *ZerologHandler) Info(msg string, args ...any) {
	handler.emit(handler.logger.Info(), msg, args)
}

func (handler *ZerologHandler) Debug(msg string, args ...any) {
	handler.emit(handler.logger.Debug(), msg, args)
}

func (handler *ZerologHandler) emit(e *zerolog.Event, msg string, args []any) {
	if e == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 >= len(args) {
			e = e.Str("!BADKEY", key)
			break
		}
		switch v := args[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}
