package logging

import (
	"bytes"
	"strings"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota + 1
	INFO
	NOTICE
	WARN
	ERROR
)

const (
	blue      = 34
	yellow    = 33
	red       = 31
	normalCol = 0
)

//nolint:gochecknoglobals // level names are fixed.
var levelNames = map[Level]string{
	DEBUG:  "DEBUG",
	INFO:   "INFO",
	NOTICE: "NOTICE",
	WARN:   "WARN",
	ERROR:  "ERROR",
}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}

	return ""
}

// MarshalJSON writes the level as its name.
func (l Level) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBufferString(`"`)
	buf.WriteString(l.String())
	buf.WriteString(`"`)

	return buf.Bytes(), nil
}

func (l Level) color() uint {
	switch l {
	case ERROR:
		return red
	case WARN, NOTICE:
		return yellow
	case INFO:
		return blue
	case DEBUG:
		return normalCol
	default:
		return normalCol
	}
}

// GetLevelFromString maps a LOG_LEVEL value to a Level, defaulting to INFO.
func GetLevelFromString(level string) Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "NOTICE":
		return NOTICE
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}
