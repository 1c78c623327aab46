package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"tg2x_go/internal/config"
)

// New создаёт логгер: текст в stdout и, если задан file, копия в файл.
// Файл читает команда /logs, поэтому в нём без цветов.
func New(level, file string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetLevel(config.GetLogLevel(level))
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   file != "",
	})
	logger.SetOutput(os.Stdout)
	if file == "" {
		return logger, nil
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return logger, err
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, f))
	return logger, nil
}

// Discard возвращает логгер без вывода, для тестов.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
