package logger

import (
	"go.uber.org/zap"
)

// Log is a no-op until Init runs, so packages can log from tests.
var Log *zap.SugaredLogger = zap.NewNop().Sugar()

// Init 初始化全局日志; verbose 时使用开发模式并输出 debug 级别
func Init(verbose bool) {
	var (
		logger *zap.Logger
		err    error
	)
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	Log = logger.Sugar()
}

// Sync flushes buffered entries; errors from syncing a terminal are ignored.
func Sync() {
	_ = Log.Sync()
}
