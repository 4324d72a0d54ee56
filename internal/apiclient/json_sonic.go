//go:build sonic

package apiclient

import "github.com/bytedance/sonic"

var (
	jsonMarshal   = sonic.Marshal
	jsonUnmarshal = sonic.Unmarshal
)
