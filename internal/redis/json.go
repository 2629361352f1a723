package redis

import "github.com/bytedance/sonic"

func marshalJSON(v any) ([]byte, error)      { return sonic.Marshal(v) }
func unmarshalJSON(data []byte, v any) error { return sonic.Unmarshal(data, v) }
