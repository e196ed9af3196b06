package substrate

import (
	"context"
	"encoding/json"
	"math"
)

func (c *Client) SystemChain(ctx context.Context) (string, error) {
	var s string
	err := c.Call(ctx, "system_chain", &s)
	return s, err
}

func (c *Client) SystemName(ctx context.Context) (string, error) {
	var s string
	err := c.Call(ctx, "system_name", &s)
	return s, err
}

func (c *Client) SystemVersion(ctx context.Context) (string, error) {
	var s string
	err := c.Call(ctx, "system_version", &s)
	return s, err
}

// Properties are the chain properties reported by system_properties.
// SS58Format is nil when the node does not report a usable prefix.
type Properties struct {
	SS58Format    *uint16
	TokenSymbol   string
	TokenDecimals int
}

// SS58Prefix returns the reported prefix, or 0 when none was reported.
func (p Properties) SS58Prefix() uint16 {
	if p.SS58Format == nil {
		return 0
	}
	return *p.SS58Format
}

func (c *Client) SystemProperties(ctx context.Context) (Properties, error) {
	var raw map[string]json.RawMessage
	if err := c.Call(ctx, "system_properties", &raw); err != nil {
		return Properties{}, err
	}
	return parseProperties(raw), nil
}

// parseProperties tolerates the shapes nodes use in practice: numbers or
// strings for scalars, and arrays on multi-token chains.
func parseProperties(raw map[string]json.RawMessage) Properties {
	var p Properties

	if v, ok := raw["ss58Format"]; ok {
		var n float64
		if json.Unmarshal(v, &n) == nil && n >= 0 && n <= math.MaxUint16 && n == math.Trunc(n) {
			prefix := uint16(n)
			p.SS58Format = &prefix
		}
	}

	if v, ok := raw["tokenSymbol"]; ok {
		var s string
		var list []string
		if json.Unmarshal(v, &s) == nil {
			p.TokenSymbol = s
		} else if json.Unmarshal(v, &list) == nil && len(list) > 0 {
			p.TokenSymbol = list[0]
		}
	}

	if v, ok := raw["tokenDecimals"]; ok {
		var n int
		var list []int
		if json.Unmarshal(v, &n) == nil {
			p.TokenDecimals = n
		} else if json.Unmarshal(v, &list) == nil && len(list) > 0 {
			p.TokenDecimals = list[0]
		}
	}

	return p
}
