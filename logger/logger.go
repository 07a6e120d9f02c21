package logger

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"

	nested "github.com/antonfisher/nested-logrus-formatter"
	log "github.com/sirupsen/logrus"
)

// 调用链：业务代码 -> logger.Infof -> entry -> runtime.Caller
const callerSkip = 3

func init() {
	log.SetFormatter(Formatter(false))
}

// SetOutput 设置日志输出目标
func SetOutput(out io.Writer) {
	log.SetOutput(out)
}

// SetLevel 按名称设置日志级别，无法识别时使用info
func SetLevel(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// UseConsole 输出到终端并启用颜色
func UseConsole(out io.Writer) {
	log.SetOutput(out)
	log.SetFormatter(Formatter(true))
}

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

func entry() *log.Entry {
	return log.WithField("caller", caller(callerSkip))
}

func Info(args ...interface{})                 { entry().Info(args...) }
func Warn(args ...interface{})                 { entry().Warn(args...) }
func Error(args ...interface{})                { entry().Error(args...) }
func Debug(args ...interface{})                { entry().Debug(args...) }
func Fatal(args ...interface{})                { entry().Fatal(args...) }
func Infof(format string, args ...interface{})  { entry().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { entry().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { entry().Errorf(format, args...) }
func Debugf(format string, args ...interface{}) { entry().Debugf(format, args...) }
func Fatalf(format string, args ...interface{}) { entry().Fatalf(format, args...) }

// Log 以键值对形式附加字段，例如 Log("size", 1024, "format", "webm").Info("...")
// 落单的键值为空字符串，非字符串的键被忽略
func Log(kv ...interface{}) *log.Entry {
	fields := log.Fields{}
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		if i+1 < len(kv) {
			fields[key] = kv[i+1]
		} else {
			fields[key] = ""
		}
	}
	fields["caller"] = caller(2)
	return log.WithFields(fields)
}

func Formatter(isConsole bool) *nested.Formatter {
	return &nested.Formatter{
		FieldsOrder:      []string{"time", "level", "caller", "msg"},
		HideKeys:         true,
		TimestampFormat:  "2006-01-02 15:04:05.000",
		CallerFirst:      true,
		NoUppercaseLevel: true,
		ShowFullLevel:    true,
		NoColors:         !isConsole,
		// caller字段由本包自行填充
		CustomCallerFormatter: func(frame *runtime.Frame) string {
			return ""
		},
	}
}
