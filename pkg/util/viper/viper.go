// Package viper 对 spf13/viper 做了精简封装，只暴露按文件加载与按 key 解码。
package viper

import (
	"path/filepath"
	"strings"

	spfviper "github.com/spf13/viper"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// Config 封装 spf13/viper 实例，对外提供精简的 YAML/JSON 配置加载接口。
type Config struct {
	v *spfviper.Viper
}

// New 创建一个空的 Config。
// 在调用 Unmarshal/UnmarshalKey 之前需要先调用 LoadFile 加载配置文件。
func New() *Config {
	return &Config{
		v: spfviper.New(),
	}
}

// BindEnv 让 key 可被环境变量覆盖：serde.format 对应 <PREFIX>_SERDE_FORMAT。
func (c *Config) BindEnv(prefix string) {
	c.v.SetEnvPrefix(prefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.v.AutomaticEnv()
}

// SetDefault 设置 key 的默认值，文件与环境变量中都没有该 key 时生效。
func (c *Config) SetDefault(key string, value any) {
	c.v.SetDefault(key, value)
}

// LoadFile 将 YAML 或 JSON 配置文件加载到 Config 中。
// 文件类型通过扩展名（.yaml/.yml/.json）推断。
func (c *Config) LoadFile(path string) error {
	c.v.SetConfigFile(path)

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		c.v.SetConfigType("yaml")
	case ".json":
		c.v.SetConfigType("json")
	default:
		return merr.WrapErrParameterInvalidMsg("unsupported config file extension %q", ext)
	}

	if err := c.v.ReadInConfig(); err != nil {
		return merr.WrapErrIoFailed(path, err)
	}
	return nil
}

// IsSet 报告 key 是否在文件、环境变量或默认值中出现。
func (c *Config) IsSet(key string) bool {
	return c.v.IsSet(key)
}

// GetString 返回 key 对应的字符串值。
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// Unmarshal 将完整配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) Unmarshal(dst any) error {
	return c.v.Unmarshal(dst)
}

// UnmarshalKey 将指定 key 对应的子配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) UnmarshalKey(key string, dst any) error {
	return c.v.UnmarshalKey(key, dst)
}
