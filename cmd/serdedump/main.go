// serdedump 以 JSON 形式打印对象图文件的通用表示，不需要链接写出方的类型。
//
// 用法：
//
//	serdedump [--config config.yaml] [-framed] [-workers N] file...
//
// -framed 表示输入为帧流（internal/stream/codec 写出），按 codec 一节的配置解帧。
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-serde/application"
	"github.com/lk2023060901/danmu-garden-serde/pkg/log"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/hardware"
)

type options struct {
	framed  bool
	workers int
	files   []string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("serdedump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := &options{}
	fs.BoolVar(&opts.framed, "framed", false, "input files are length-prefixed frame streams")
	fs.IntVar(&opts.workers, "workers", hardware.GetCPUNum(), "number of files decoded concurrently")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.files = fs.Args()
	if len(opts.files) == 0 {
		fs.Usage()
		return nil, fmt.Errorf("no input files")
	}
	if opts.workers <= 0 {
		opts.workers = 1
	}
	return opts, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run 返回进程退出码；日志在返回前刷新。
func run(args []string, stdout, stderr io.Writer) int {
	app := application.New()
	if err := app.RunWithArgs(args); err != nil {
		fmt.Fprintf(stderr, "serdedump: %v\n", err)
		return 1
	}
	defer log.Cleanup()

	opts, err := parseFlags(app.Args(), stderr)
	if err != nil {
		fmt.Fprintf(stderr, "serdedump: %v\n", err)
		return 2
	}
	log.Info("serdedump started",
		zap.Int("files", len(opts.files)),
		zap.Int("workers", opts.workers),
		zap.Uint64("hostMemory", hardware.GetMemoryCount()),
		zap.Uint64("usedMemory", hardware.GetUsedMemoryCount()))

	if err := dump(app, opts, stdout); err != nil {
		fmt.Fprintf(stderr, "serdedump: %v\n", err)
		return 1
	}
	return 0
}
