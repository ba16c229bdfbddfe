// Package application 负责加载配置、初始化日志，并据此构造 Serializer 与帧编解码器。
package application

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-serde/internal/stream/codec"
	"github.com/lk2023060901/danmu-garden-serde/internal/stream/compressor"
	"github.com/lk2023060901/danmu-garden-serde/internal/stream/framer"
	"github.com/lk2023060901/danmu-garden-serde/internal/stream/serializer"
	zlog "github.com/lk2023060901/danmu-garden-serde/pkg/log"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
	zviper "github.com/lk2023060901/danmu-garden-serde/pkg/util/viper"
)

const (
	defaultConfigPath = "./config.yaml"
	configPathEnv     = "SERDE_CONFIG_FILE_PATH"
	envPrefix         = "SERDE"
)

// CodecConfig 为配置文件中 codec 一节，描述帧编解码器。
type CodecConfig struct {
	// Serializer 可选 graph（默认）或 json。
	Serializer string `mapstructure:"serializer"`
	// Compression 可选 none（默认）或 zstd。
	Compression  string `mapstructure:"compression"`
	MaxFrameSize uint32 `mapstructure:"max_frame_size"`
}

// Application 为进程的运行时容器，持有配置与公共依赖。
type Application struct {
	cfg     *zviper.Config
	args    []string
	loggers map[string]*zlog.MLogger

	serde    *serde.Serializer
	codecCfg CodecConfig
}

func New() *Application {
	return &Application{}
}

// Run 解析 os.Args 并完成初始化，见 RunWithArgs。
func (a *Application) Run() error {
	return a.RunWithArgs(os.Args[1:])
}

// RunWithArgs 按以下优先级确定配置文件并完成初始化：
//  1. 默认：./config.yaml，文件不存在时使用空配置；
//  2. 环境变量：SERDE_CONFIG_FILE_PATH；
//  3. 命令行：--config <path> 或 --config=<path>。
//
// 其余参数按原顺序保留，可通过 Args 取得。
func (a *Application) RunWithArgs(args []string) error {
	cfg, err := a.loadConfig(args)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.initLogging(); err != nil {
		return err
	}
	return a.initSerde()
}

func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// Args 返回去掉 --config 之后的命令行参数。
func (a *Application) Args() []string {
	return a.args
}

// Serializer 返回按 serde 一节配置的 Serializer。
func (a *Application) Serializer() *serde.Serializer {
	if a.serde == nil {
		return serde.Default()
	}
	return a.serde
}

// Logger 返回配置中同名的模块日志，名字未知时回退到全局日志。
func (a *Application) Logger(name string) *zlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return &zlog.MLogger{Logger: zlog.L()}
}

// NewCodec 按 codec 一节创建帧编解码器。返回的 release 释放压缩器资源。
func (a *Application) NewCodec() (codec.Codec, func(), error) {
	s, ok := serializer.ByName(a.codecCfg.Serializer, a.Serializer())
	if !ok {
		return nil, nil, merr.WrapErrParameterInvalidMsg("unknown codec serializer %q", a.codecCfg.Serializer)
	}
	comp, err := compressor.New(a.codecCfg.Compression)
	if err != nil {
		return nil, nil, err
	}
	release := func() {}
	if z, ok := comp.(*compressor.ZstdCompressor); ok {
		release = z.Close
	}
	c, err := codec.New(codec.Options{
		Framer:            framer.NewLengthPrefixedFramer(a.codecCfg.MaxFrameSize),
		Serializer:        s,
		Compressor:        comp,
		EnableCompression: a.codecCfg.Compression == compressor.NameZstd,
	})
	if err != nil {
		release()
		return nil, nil, err
	}
	return c, release, nil
}

func (a *Application) loadConfig(args []string) (*zviper.Config, error) {
	configPath := defaultConfigPath
	explicit := false

	if envPath := os.Getenv(configPathEnv); envPath != "" {
		configPath, explicit = envPath, true
	}

	a.args = a.args[:0]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return nil, merr.WrapErrParameterMissing("--config", "missing value after --config")
			}
			configPath, explicit = args[i+1], true
			i++
			continue
		}
		if val, ok := strings.CutPrefix(arg, "--config="); ok {
			if val != "" {
				configPath, explicit = val, true
			}
			continue
		}
		a.args = append(a.args, arg)
	}

	cfg := zviper.New()
	cfg.BindEnv(envPrefix)
	if !explicit {
		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
	}
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, errors.Wrapf(err, "failed to load config file %q", configPath)
	}
	return cfg, nil
}

func (a *Application) initLogging() error {
	if err := a.initGlobalLoggerFromEnv(); err != nil {
		return err
	}
	return a.initModuleLoggersFromConfig()
}

// initGlobalLoggerFromEnv 根据 SERDE_LOG_* 环境变量配置进程级日志。
//
// 说明：
//   - SERDE_LOG_ENABLE：为 1/true 时开启输出，否则丢弃；
//   - SERDE_LOG_LEVEL：日志级别，默认 info；
//   - SERDE_LOG_STDOUT：是否输出到标准输出；
//   - SERDE_LOG_FILE_DIR、SERDE_LOG_FILE：日志目录与文件名，文件名为空表示不写文件；
//   - SERDE_LOG_FORMAT：text 或 json，默认 text。
func (a *Application) initGlobalLoggerFromEnv() error {
	enabled := getenvBool("SERDE_LOG_ENABLE", false)

	cfg := &zlog.Config{
		Level:               getenvDefault("SERDE_LOG_LEVEL", "info"),
		Format:              getenvDefault("SERDE_LOG_FORMAT", "text"),
		Stdout:              getenvBool("SERDE_LOG_STDOUT", false),
		DisableErrorVerbose: true,
		File: zlog.FileLogConfig{
			RootPath: getenvDefault("SERDE_LOG_FILE_DIR", ""),
			Filename: getenvDefault("SERDE_LOG_FILE", ""),
		},
	}
	if !enabled {
		cfg.Stdout = false
		cfg.File.Filename = ""
	}

	logger, props, err := zlog.InitLogger(cfg)
	if err != nil {
		return errors.Wrap(err, "init global logger from env")
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggersFromConfig 按 logging 一节创建模块日志，例如：
//
//	logging:
//	  serde:
//	    level: debug
//	    stdout: true
func (a *Application) initModuleLoggersFromConfig() error {
	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		logger, _, err := zlog.InitLogger(&lc)
		if err != nil {
			return errors.Wrapf(err, "init module logger %q", name)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger.With(zlog.FieldModule(name))}
	}
	return nil
}

// initSerde 按 serde 一节与 codec 一节构造 Serializer。
func (a *Application) initSerde() error {
	var sc serde.Config
	if err := a.cfg.UnmarshalKey("serde", &sc); err != nil {
		return err
	}
	if err := a.cfg.UnmarshalKey("codec", &a.codecCfg); err != nil {
		return err
	}
	opts, err := sc.Options()
	if err != nil {
		return err
	}
	opts = append(opts, serde.WithLogger(a.Logger("serde")))
	if sc.Metrics {
		serde.RegisterMetrics(prometheus.DefaultRegisterer)
	}
	a.serde = serde.New(opts...)
	zlog.Info("serde initialized",
		zap.String("format", sc.Format),
		zap.Bool("strictTypeCodes", sc.StrictTypeCodes),
		zap.String("compression", a.codecCfg.Compression))
	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
