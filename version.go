package main

import (
	"fmt"

	"github.com/Ramsey-USA/mh-website-sub005/internal/version"
)

// printVersion 输出注入的版本 + 提交信息。
func printVersion() {
	fmt.Fprintln(stdOut, version.Full())
}
