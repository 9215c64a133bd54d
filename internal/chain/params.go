package chain

import (
	"encoding/base64"
	"math/big"
)

// ContractParam is a contract invocation parameter in RPC form.
type ContractParam struct {
	Type  string `json:"type"`
	Value any    `json:"value,omitempty"`
}

// NewIntegerParam creates an Integer parameter.
func NewIntegerParam(v *big.Int) ContractParam {
	return ContractParam{Type: "Integer", Value: v.String()}
}

// NewStringParam creates a String parameter.
func NewStringParam(s string) ContractParam {
	return ContractParam{Type: "String", Value: s}
}

// NewBoolParam creates a Boolean parameter.
func NewBoolParam(b bool) ContractParam {
	return ContractParam{Type: "Boolean", Value: b}
}

// NewHash160Param creates a Hash160 parameter from a 0x-prefixed script hash.
func NewHash160Param(hash string) ContractParam {
	return ContractParam{Type: "Hash160", Value: hash}
}

// NewByteArrayParam creates a ByteArray parameter (base64-encoded on the wire).
func NewByteArrayParam(b []byte) ContractParam {
	return ContractParam{Type: "ByteArray", Value: base64.StdEncoding.EncodeToString(b)}
}

// NewArrayParam creates an Array parameter from nested parameters.
func NewArrayParam(items []ContractParam) ContractParam {
	return ContractParam{Type: "Array", Value: items}
}

// NewAnyParam creates a null Any parameter.
func NewAnyParam() ContractParam {
	return ContractParam{Type: "Any", Value: nil}
}
