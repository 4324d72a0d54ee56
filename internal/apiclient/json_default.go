//go:build !sonic

package apiclient

import "github.com/goccy/go-json"

var (
	jsonMarshal   = json.Marshal
	jsonUnmarshal = json.Unmarshal
)
