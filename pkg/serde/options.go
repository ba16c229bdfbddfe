package serde

import (
	"strings"

	"github.com/lk2023060901/danmu-garden-serde/pkg/log"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde/codec"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// DefaultMaxDepth 为默认的最大嵌套深度。
const DefaultMaxDepth = 1000

// Format 为写出时使用的格式变体。
type Format int

const (
	// FormatCurrent 为当前格式：容器标志中显式记录元素的标签方式。
	FormatCurrent Format = iota
	// FormatLegacy 为旧格式：容器标志不含元素位，由元素的静态类型推断。
	FormatLegacy
)

func (f Format) String() string {
	switch f {
	case FormatCurrent:
		return "current"
	case FormatLegacy:
		return "legacy"
	}
	return "unknown"
}

// ParseFormat 解析格式名，空串视为 current。
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "current":
		return FormatCurrent, nil
	case "legacy":
		return FormatLegacy, nil
	}
	return 0, merr.WrapErrParameterInvalidMsg("unknown serde format %q", s)
}

// ParseDateTimeHandling 解析时间处理策略名，空串视为 as_is。
func ParseDateTimeHandling(s string) (codec.DateTimeHandling, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", codec.DateTimeAsIs.String():
		return codec.DateTimeAsIs, nil
	case codec.DateTimeNormalizeUTC.String():
		return codec.DateTimeNormalizeUTC, nil
	}
	return 0, merr.WrapErrParameterInvalidMsg("unknown date time handling %q", s)
}

type options struct {
	settings    codec.Settings
	strictCodes bool
	binder      codec.TypeNameBinder
	format      Format
	maxDepth    int
	metrics     bool
	logger      *log.MLogger

	entities  EntityBinder
	instances InstanceResolver
	renames   PropertyNameResolver
	obsolete  ObsoletePropertySink
}

// Option 用于配置 Serializer 的选项函数。
type Option func(opt *options)

func defaultOptions() *options {
	return &options{
		binder:   codec.DefaultBinder{},
		format:   FormatCurrent,
		maxDepth: DefaultMaxDepth,
	}
}

// WithDateTimeHandling 设置本地时间的写出策略。
func WithDateTimeHandling(h codec.DateTimeHandling) Option {
	return func(opt *options) {
		opt.settings.DateTime = h
	}
}

// WithStrictTypeCodes 为 true 时，未通过 RegisterTypeCode 注册编号的命名类型在写出时报错，
// 不再回退为完整类型名。
func WithStrictTypeCodes(strict bool) Option {
	return func(opt *options) {
		opt.strictCodes = strict
	}
}

// WithTypeNameBinder 设置类型名绑定器。
func WithTypeNameBinder(b codec.TypeNameBinder) Option {
	return func(opt *options) {
		if b != nil {
			opt.binder = b
		}
	}
}

func WithFormat(f Format) Option {
	return func(opt *options) {
		opt.format = f
	}
}

// WithMaxDepth 限制读写时的嵌套深度，n <= 0 时使用 DefaultMaxDepth。
func WithMaxDepth(n int) Option {
	return func(opt *options) {
		if n <= 0 {
			n = DefaultMaxDepth
		}
		opt.maxDepth = n
	}
}

// WithMetrics 开启 Prometheus 指标记录，指标需通过 metrics.Register 注册。
func WithMetrics(enable bool) Option {
	return func(opt *options) {
		opt.metrics = enable
	}
}

func WithLogger(l *log.MLogger) Option {
	return func(opt *options) {
		opt.logger = l
	}
}

// WithEntityBinder 设置实体引用的替换与解析钩子。
func WithEntityBinder(b EntityBinder) Option {
	return func(opt *options) {
		opt.entities = b
	}
}

// WithInstanceResolver 设置类型名无法绑定时的实例解析器。
func WithInstanceResolver(r InstanceResolver) Option {
	return func(opt *options) {
		opt.instances = r
	}
}

// WithPropertyNameResolver 设置属性改名解析器。
func WithPropertyNameResolver(r PropertyNameResolver) Option {
	return func(opt *options) {
		opt.renames = r
	}
}

// WithObsoletePropertySink 设置已删除属性的接收者。
func WithObsoletePropertySink(s ObsoletePropertySink) Option {
	return func(opt *options) {
		opt.obsolete = s
	}
}

// Config 为可从配置文件加载的 Serializer 配置。
type Config struct {
	// DateTimeHandling 可选 as_is 或 normalize_utc。
	DateTimeHandling  string `mapstructure:"date_time_handling" json:"date_time_handling"`
	StrictTypeCodes   bool   `mapstructure:"strict_type_codes" json:"strict_type_codes"`
	PortableTypeNames bool   `mapstructure:"portable_type_names" json:"portable_type_names"`
	// Format 可选 current 或 legacy。
	Format   string `mapstructure:"format" json:"format"`
	MaxDepth int    `mapstructure:"max_depth" json:"max_depth"`
	Metrics  bool   `mapstructure:"metrics" json:"metrics"`
}

// Options 将配置转换为选项列表。
func (c *Config) Options() ([]Option, error) {
	h, err := ParseDateTimeHandling(c.DateTimeHandling)
	if err != nil {
		return nil, err
	}
	f, err := ParseFormat(c.Format)
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithDateTimeHandling(h),
		WithStrictTypeCodes(c.StrictTypeCodes),
		WithFormat(f),
		WithMaxDepth(c.MaxDepth),
		WithMetrics(c.Metrics),
	}
	if c.PortableTypeNames {
		opts = append(opts, WithTypeNameBinder(codec.PortableBinder{}))
	}
	return opts, nil
}
