package notification

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const defaultLogMaxSizeMB = 5

// logChannel appends one line per notification to a plain-text file,
// rotating to a single .old file when the size cap is hit.
type logChannel struct {
	cfg  LogConfig
	mu   sync.Mutex
	file *os.File
}

func newLogChannel(cfg LogConfig) *logChannel {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = defaultLogMaxSizeMB
	}
	return &logChannel{cfg: cfg}
}

// Send appends the notification to the log file.
func (c *logChannel) Send(n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureFile(); err != nil {
		return err
	}

	line := fmt.Sprintf("%s [%s] %s\n",
		n.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
		strings.ToUpper(string(n.Kind)), n.Body)
	if _, err := c.file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return c.file.Sync()
}

func (c *logChannel) ensureFile() error {
	if c.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.cfg.Path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := c.rotateIfNeeded(); err != nil {
		return err
	}
	file, err := os.OpenFile(c.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	c.file = file
	return nil
}

func (c *logChannel) rotateIfNeeded() error {
	info, err := os.Stat(c.cfg.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < int64(c.cfg.MaxSizeMB)*1024*1024 {
		return nil
	}
	if err := os.Rename(c.cfg.Path, c.cfg.Path+".old"); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}
	return nil
}

// Close closes the log file.
func (c *logChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file != nil {
		err := c.file.Close()
		c.file = nil
		return err
	}
	return nil
}

// ReadLog returns all lines from a notification log file. A missing
// file reads as empty.
func ReadLog(path string) ([]string, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var entries []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		entries = append(entries, scanner.Text())
	}
	return entries, scanner.Err()
}
