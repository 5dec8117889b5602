package utils

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// SetupSlogLogger configures structured logging with slog
func SetupSlogLogger() (*os.File, error) {
	level := strings.ToLower(viper.GetString("logging.level"))
	format := strings.ToLower(viper.GetString("logging.format"))
	output := strings.ToLower(viper.GetString("logging.output"))
	logFile := viper.GetString("logging.file")

	if level == "" {
		level = "info"
	}
	if format == "" {
		format = "json"
	}
	if output == "" {
		output = "stdout"
	}
	if logFile == "" {
		logFile = "/var/log/certgate.log"
	}

	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var writer io.Writer
	var file *os.File
	var err error

	switch output {
	case "stdout":
		writer = os.Stdout
	case "file":
		logDir := filepath.Dir(logFile)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			// Fall back to a local directory when /var/log is not writable
			logFile = "./logs/certgate.log"
			logDir = filepath.Dir(logFile)
			if err := os.MkdirAll(logDir, 0755); err != nil {
				return nil, fmt.Errorf("could not create log directory: %v", err)
			}
		}

		file, err = os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("could not open log file %s: %v", logFile, err)
		}
		writer = file
	case "both":
		logDir := filepath.Dir(logFile)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			logFile = "./logs/certgate.log"
			logDir = filepath.Dir(logFile)
			if err := os.MkdirAll(logDir, 0755); err != nil {
				return nil, fmt.Errorf("could not create log directory: %v", err)
			}
		}

		file, err = os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("could not open log file %s: %v", logFile, err)
		}
		writer = io.MultiWriter(os.Stdout, file)
	default:
		writer = os.Stdout
	}

	var handler slog.Handler
	handlerOpts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: true,
	}

	if format == "json" {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(writer, handlerOpts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Route the standard log package through the same writer
	if output != "stdout" {
		log.SetOutput(writer)
	}
	log.SetFlags(0)

	slog.Info("logging configured",
		"level", level,
		"format", format,
		"output", output,
		"file", logFile)

	return file, nil
}
