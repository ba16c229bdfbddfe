// Package json 为基于 bytedance/sonic 的 JSON 编解码入口，行为与 encoding/json 兼容。
package json

import (
	gojson "encoding/json"

	"github.com/bytedance/sonic"
)

var (
	json = sonic.ConfigStd
	// Marshal 与 encoding/json.Marshal 行为一致。
	Marshal = json.Marshal
	// Unmarshal 与 encoding/json.Unmarshal 行为一致。
	Unmarshal = json.Unmarshal
	// MarshalIndent 与 encoding/json.MarshalIndent 行为一致。
	MarshalIndent = json.MarshalIndent
	NewDecoder    = json.NewDecoder
	NewEncoder    = json.NewEncoder
	Valid         = json.Valid
)

type (
	RawMessage = gojson.RawMessage
	Number     = gojson.Number
)
