package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// Config - where log files go. An empty Directory logs to stdout only.
type Config struct {
	Directory  string
	FileFormat string // e.g. "server-%s.log", %s is the date
}

var (
	mu      sync.Mutex
	logger  = log.New(os.Stdout, "", log.Ldate|log.Ltime)
	logFile *os.File
)

// Setup points the logger at stdout plus a dated file under cfg.Directory.
func Setup(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	if cfg.Directory == "" {
		return nil
	}
	if cfg.FileFormat == "" {
		cfg.FileFormat = "pos-%s.log"
	}
	if err := os.MkdirAll(cfg.Directory, 0o775); err != nil {
		return fmt.Errorf("create log directory %q: %w", cfg.Directory, err)
	}

	name := fmt.Sprintf(cfg.FileFormat, time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(cfg.Directory, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f
	logger = log.New(io.MultiWriter(os.Stdout, f), "", log.Ldate|log.Ltime)
	return nil
}

// SetOutput redirects all log lines; tests use it to silence output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = log.New(w, "", log.Ldate|log.Ltime)
}

func logMessage(level string, message string, v ...any) {
	_, file, line, _ := runtime.Caller(2)
	msg := fmt.Sprintf(message, v...)

	mu.Lock()
	l := logger
	mu.Unlock()
	l.Printf("[%s] %s:%d - %s", level, filepath.Base(file), line, msg)
}

func LogInfo(message string, v ...any)  { logMessage("INFO", message, v...) }
func LogWarn(message string, v ...any)  { logMessage("WARN", message, v...) }
func LogError(message string, v ...any) { logMessage("ERROR", message, v...) }

func LogFatal(message string, v ...any) {
	logMessage("FATAL", message, v...)
	os.Exit(1)
}
