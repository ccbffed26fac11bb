package utils

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"yqhp/combat-engine/pkg/logger"
)

// SafeGoWithName 安全地启动一个带名称的 goroutine，自动捕获 panic 并记录日志
// 使用方式: utils.SafeGoWithName("stagger", func() { ... })
func SafeGoWithName(name string, fn func()) {
	SafeGoWithCallback(name, fn, nil)
}

// SafeGoWithCallback 安全地启动一个 goroutine，支持自定义 panic 处理回调
func SafeGoWithCallback(name string, fn func(), onPanic func(r any)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				// 记录 panic 信息和堆栈
				logger.L().Error("goroutine panic recovered",
					zap.String("goroutine", name),
					zap.String("panic", fmt.Sprint(r)),
					zap.ByteString("stack", debug.Stack()))
				if onPanic != nil {
					onPanic(r)
				}
			}
		}()
		fn()
	}()
}
