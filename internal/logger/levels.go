package logger

import (
	"fmt"
	"log"
	"strings"
)

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarning
	levelError
)

var minLevel = levelInfo

func setLevel(name string) {
	switch strings.ToUpper(name) {
	case "DEBUG":
		minLevel = levelDebug
	case "INFO":
		minLevel = levelInfo
	case "WARNING", "WARN":
		minLevel = levelWarning
	case "ERROR":
		minLevel = levelError
	}
}

func output(l level, prefix, format string, args ...interface{}) {
	if l < minLevel {
		return
	}
	log.Output(3, prefix+fmt.Sprintf(format, args...))
}

// Debugf logs a formatted debug message.
func Debugf(format string, args ...interface{}) {
	output(levelDebug, "[DEBUG] ", format, args...)
}

// Infof logs a formatted informational message.
func Infof(format string, args ...interface{}) {
	output(levelInfo, "[INFO] ", format, args...)
}

// Warningf logs a formatted warning message.
func Warningf(format string, args ...interface{}) {
	output(levelWarning, "[WARN] ", format, args...)
}

// Errorf logs a formatted error message.
func Errorf(format string, args ...interface{}) {
	output(levelError, "[ERROR] ", format, args...)
}

// Error logs an error message.
func Error(msg string) {
	output(levelError, "[ERROR] ", "%s", msg)
}
