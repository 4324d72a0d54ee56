package utils

import (
	"bytes"
	"io"
	"strconv"
	"sync"
	"time"
)

// LogInterceptor prefixes every complete line written to it with a sequence number and a
// timestamp before passing it to the target writer. Partial lines are held until their newline
// arrives or Close is called.
type LogInterceptor struct {
	mu      sync.Mutex
	target  io.Writer
	seq     uint64
	pending bytes.Buffer
	now     func() time.Time
}

func NewLogInterceptor(target io.Writer) *LogInterceptor {
	return &LogInterceptor{target: target, now: time.Now}
}

func (i *LogInterceptor) Write(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.pending.Write(p)
	for {
		idx := bytes.IndexByte(i.pending.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := i.pending.Next(idx + 1)
		if err := i.writeLine(bytes.TrimRight(line, "\r\n")); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Close flushes a trailing partial line.
func (i *LogInterceptor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.pending.Len() == 0 {
		return nil
	}
	line := bytes.Clone(i.pending.Bytes())
	i.pending.Reset()
	return i.writeLine(line)
}

func (i *LogInterceptor) writeLine(line []byte) error {
	i.seq++
	buf := make([]byte, 0, len(line)+48)
	buf = append(buf, "line="...)
	buf = strconv.AppendUint(buf, i.seq, 10)
	buf = append(buf, " time="...)
	buf = i.now().AppendFormat(buf, time.RFC3339)
	buf = append(buf, ' ')
	buf = append(buf, line...)
	buf = append(buf, '\n')
	_, err := i.target.Write(buf)
	return err
}
