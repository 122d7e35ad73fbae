package sink

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shiptoday/nanochat/internal/domain"
	"k8s.io/klog/v2"
)

// ErrClosed 在 Close 之后继续写入
var ErrClosed = errors.New("sink is closed")

// PersistenceError 输出文件不可写
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// JSONLSink 只追加的结果文件，每条记录占一行
// 生命周期：Open（截断）-> Append* -> Close
type JSONLSink struct {
	path  string
	mutex sync.Mutex
	file  *os.File
	count int
}

// Open 创建输出文件并截断已有内容
func Open(path string) (*JSONLSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &PersistenceError{Path: path, Op: "mkdir", Err: err}
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0644)
	if err != nil {
		return nil, &PersistenceError{Path: path, Op: "open", Err: err}
	}
	klog.V(6).Infof("输出文件已截断: %s", path)
	return &JSONLSink{path: path, file: file}, nil
}

// Path 返回输出文件路径
func (s *JSONLSink) Path() string {
	return s.path
}

// Append 将一条记录序列化为单行并落盘
// 整行在持锁期间一次写入并 Sync，多个并发调用不会交错
func (s *JSONLSink) Append(record *domain.ConversationRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return &PersistenceError{Path: s.path, Op: "marshal", Err: err}
	}
	line = append(line, '\n')

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.file == nil {
		return &PersistenceError{Path: s.path, Op: "append", Err: ErrClosed}
	}
	if _, err := s.file.Write(line); err != nil {
		return &PersistenceError{Path: s.path, Op: "write", Err: err}
	}
	if err := s.file.Sync(); err != nil {
		return &PersistenceError{Path: s.path, Op: "sync", Err: err}
	}
	s.count++
	return nil
}

// Count 返回已写入的记录数
func (s *JSONLSink) Count() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.count
}

// Close 关闭文件，重复调用无副作用
func (s *JSONLSink) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return &PersistenceError{Path: s.path, Op: "close", Err: err}
	}
	return nil
}

// ReadAll 读回输出文件中的全部记录
func ReadAll(path string) ([]domain.ConversationRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var records []domain.ConversationRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		var rec domain.ConversationRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
