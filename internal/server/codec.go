package server

import "github.com/bytedance/sonic"

// SonicCodec Connect RPC的JSON编解码器，消息是普通 Go 结构体
type SonicCodec struct{}

func (SonicCodec) Name() string {
	return "json"
}

func (SonicCodec) Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func (SonicCodec) Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}
