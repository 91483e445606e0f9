package platform

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Hook 按天切换日志文件: <logPath>/<date>/<fileName>.log
type Hook struct {
	mu       sync.Mutex
	writer   *os.File
	logPath  string
	fileName string
	fileDate string
}

func NewHook(logPath, fileName string) *Hook {
	return &Hook{logPath: logPath, fileName: fileName}
}

func (h *Hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *Hook) Fire(entry *logrus.Entry) error {
	line, err := entry.Bytes()
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	date := entry.Time.Format("2006-01-02")
	//需要切换日志文件
	if h.writer == nil || h.fileDate != date {
		if h.writer != nil {
			h.writer.Close()
		}
		dir := filepath.Join(h.logPath, date)
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			h.writer = nil
			return err
		}
		h.writer, err = os.OpenFile(filepath.Join(dir, h.fileName+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
		if err != nil {
			h.writer = nil
			return err
		}
		h.fileDate = date
	}
	_, err = h.writer.Write(line)
	return err
}

func (h *Hook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writer == nil {
		return nil
	}
	err := h.writer.Close()
	h.writer = nil
	return err
}

type LogFormatter struct {
}

func (m *LogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(b, "[%s] [%s] %s", timestamp, entry.Level, entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&LogFormatter{})
	logger.SetOutput(os.Stderr)
	return logger
}

// Logger 是应用日志，InitLogger 之前只输出到 stderr
var Logger = newLogger()

// InitLogger adds the daily file output to Logger and routes the standard
// logrus logger (used by gin middlewares) through the same formatter and files.
func InitLogger(logPath, fileName string) *Hook {
	hook := NewHook(logPath, fileName)
	Logger.AddHook(hook)

	logrus.SetFormatter(&LogFormatter{})
	logrus.AddHook(hook)
	return hook
}

// Since 毫秒耗时, 用于日志字段
func Since(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
