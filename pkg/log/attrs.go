package log

import "log/slog"

func ProcessID[T ~string](id T) slog.Attr {
	return slog.String("process_id", string(id))
}

func NodeID[T ~string](id T) slog.Attr {
	return slog.String("node_id", string(id))
}

func DefinitionID[T ~string](id T) slog.Attr {
	return slog.String("definition_id", string(id))
}

func State[T ~string](state T) slog.Attr {
	return slog.String("state", string(state))
}

func Trigger[T ~string](kind T) slog.Attr {
	return slog.String("trigger", string(kind))
}

func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
