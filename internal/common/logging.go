package common

import (
	"io"
	"log"
	"os"
)

var (
	logger = log.New(os.Stderr, "[segdgate] ", log.LstdFlags|log.Lmicroseconds)
)

// SetOutput redirects package logging, e.g. to a rotating file.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func Logf(format string, args ...interface{}) {
	logger.Printf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	logger.Fatalf(format, args...)
}
