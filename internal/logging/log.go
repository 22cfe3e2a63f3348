package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel 日志级别
type LogLevel int

const (
	// DEBUG 调试级别
	DEBUG LogLevel = iota
	// INFO 信息级别
	INFO
	// WARN 警告级别
	WARN
	// ERROR 错误级别
	ERROR
	// FATAL 致命级别
	FATAL
)

// ParseLevel 把配置中的级别名转换为LogLevel，未知名称按INFO处理
func ParseLevel(name string) LogLevel {
	switch strings.ToLower(name) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// Logger 日志记录器
type Logger struct {
	debugLogger  *log.Logger
	infoLogger   *log.Logger
	warnLogger   *log.Logger
	errorLogger  *log.Logger
	fatalLogger  *log.Logger
	auditLogger  *log.Logger
	level        LogLevel
	auditEnabled bool
}

// Config 日志配置
type Config struct {
	Level        string
	Output       string
	AuditEnabled bool
	AuditOutput  string
}

// AuditLogEntry 审计日志条目
type AuditLogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	EventType string                 `json:"event_type"`
	User      string                 `json:"user,omitempty"`
	IP        string                 `json:"ip,omitempty"`
	Country   string                 `json:"country,omitempty"`
	Action    string                 `json:"action"`
	Resource  string                 `json:"resource,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Result    string                 `json:"result"`
	Message   string                 `json:"message"`
}

// openOutput 打开日志输出，失败时回退到stdout
func openOutput(path, what string) io.Writer {
	if path == "stdout" || path == "" {
		return os.Stdout
	}
	if path == "stderr" {
		return os.Stderr
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Printf("Failed to open %s file: %v, using stdout instead\n", what, err)
		return os.Stdout
	}
	return f
}

// NewLogger 创建新的日志记录器
func NewLogger(config Config) *Logger {
	output := openOutput(config.Output, "log")
	var auditOutput io.Writer
	if config.AuditEnabled {
		auditOutput = openOutput(config.AuditOutput, "audit log")
	}
	return NewLoggerWithWriters(config, output, auditOutput)
}

// NewLoggerWithWriters 使用指定的输出创建日志记录器
func NewLoggerWithWriters(config Config, output, auditOutput io.Writer) *Logger {
	flags := log.Ldate | log.Ltime | log.Lmicroseconds
	logger := &Logger{
		debugLogger:  log.New(output, "[DEBUG] ", flags),
		infoLogger:   log.New(output, "[INFO]  ", flags),
		warnLogger:   log.New(output, "[WARN]  ", flags),
		errorLogger:  log.New(output, "[ERROR] ", flags),
		fatalLogger:  log.New(output, "[FATAL] ", flags),
		level:        ParseLevel(config.Level),
		auditEnabled: config.AuditEnabled && auditOutput != nil,
	}
	if logger.auditEnabled {
		logger.auditLogger = log.New(auditOutput, "", 0) // 审计日志使用JSON格式，不需要前缀和时间戳
	}
	return logger
}

// Debug 记录调试日志
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.level <= DEBUG {
		l.debugLogger.Printf(format, v...)
	}
}

// Info 记录信息日志
func (l *Logger) Info(format string, v ...interface{}) {
	if l.level <= INFO {
		l.infoLogger.Printf(format, v...)
	}
}

// Warn 记录警告日志
func (l *Logger) Warn(format string, v ...interface{}) {
	if l.level <= WARN {
		l.warnLogger.Printf(format, v...)
	}
}

// Error 记录错误日志
func (l *Logger) Error(format string, v ...interface{}) {
	if l.level <= ERROR {
		l.errorLogger.Printf(format, v...)
	}
}

// Fatal 记录致命日志并退出程序
func (l *Logger) Fatal(format string, v ...interface{}) {
	l.fatalLogger.Printf(format, v...)
	os.Exit(1)
}

// Audit 记录审计日志
func (l *Logger) Audit(entry AuditLogEntry) {
	if !l.auditEnabled {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		l.Error("Failed to marshal audit log: %v", err)
		return
	}
	l.auditLogger.Println(string(jsonData))
}

// LogSecurityEvent 记录安全事件（登录、登出、令牌失效等）
func (l *Logger) LogSecurityEvent(eventType, ip, country string, details map[string]interface{}, result, message string) {
	l.Audit(AuditLogEntry{
		Level:     "SECURITY",
		EventType: eventType,
		IP:        ip,
		Country:   country,
		Action:    "security_event",
		Details:   details,
		Result:    result,
		Message:   message,
	})
}

// LogUserAction 记录用户在控制台中的写操作
func (l *Logger) LogUserAction(user, ip, action, resource string, details map[string]interface{}, result, message string) {
	l.Audit(AuditLogEntry{
		Level:     "USER",
		EventType: "user_action",
		User:      user,
		IP:        ip,
		Action:    action,
		Resource:  resource,
		Details:   details,
		Result:    result,
		Message:   message,
	})
}

// LogRateLimited 记录被限流的请求
func (l *Logger) LogRateLimited(user, ip, reason string, details map[string]interface{}) {
	l.Audit(AuditLogEntry{
		Level:     "LIMIT",
		EventType: "rate_limited",
		User:      user,
		IP:        ip,
		Action:    "submit_blocked",
		Details:   details,
		Result:    "blocked",
		Message:   reason,
	})
	l.Info("Rate limited: user=%s ip=%s reason=%s", user, ip, reason)
}

// LoggerInterface 日志接口
type LoggerInterface interface {
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
	Fatal(format string, v ...interface{})
	Audit(entry AuditLogEntry)
	LogSecurityEvent(eventType, ip, country string, details map[string]interface{}, result, message string)
	LogUserAction(user, ip, action, resource string, details map[string]interface{}, result, message string)
	LogRateLimited(user, ip, reason string, details map[string]interface{})
}

// DefaultLogger 默认日志记录器
var DefaultLogger *Logger

var configureMu sync.Mutex

func init() {
	DefaultLogger = NewLogger(Config{
		Level:        "info",
		Output:       "stdout",
		AuditEnabled: true,
		AuditOutput:  "stdout",
	})
}

// Configure 按配置重建默认日志记录器
func Configure(config Config) *Logger {
	configureMu.Lock()
	defer configureMu.Unlock()
	DefaultLogger = NewLogger(config)
	return DefaultLogger
}
