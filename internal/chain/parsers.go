package chain

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
)

// =============================================================================
// Stack Item Parsers
// =============================================================================

// ParseArray extracts an array of StackItems from a parent StackItem.
func ParseArray(item StackItem) ([]StackItem, error) {
	if item.Type != "Array" && item.Type != "Struct" {
		return nil, fmt.Errorf("expected Array or Struct, got %s", item.Type)
	}

	var items []StackItem
	if err := json.Unmarshal(item.Value, &items); err != nil {
		return nil, fmt.Errorf("unmarshal array: %w", err)
	}
	return items, nil
}

// ParseInteger parses an Integer stack item into a big.Int.
func ParseInteger(item StackItem) (*big.Int, error) {
	if item.Type != "Integer" {
		return nil, fmt.Errorf("unexpected type: %s", item.Type)
	}
	var value string
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return nil, err
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer value %q", value)
	}
	return n, nil
}

// ParseBoolean parses a Boolean stack item.
func ParseBoolean(item StackItem) (bool, error) {
	if item.Type != "Boolean" {
		return false, fmt.Errorf("unexpected type: %s", item.Type)
	}
	var value bool
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return false, err
	}
	return value, nil
}

// ParseHash160 parses a ByteString stack item into a 0x-prefixed big-endian
// script hash string.
func ParseHash160(item StackItem) (string, error) {
	if item.Type != "ByteString" && item.Type != "Buffer" {
		return "", fmt.Errorf("unexpected type: %s", item.Type)
	}
	raw, err := decodeHash160(item)
	if err != nil {
		return "", err
	}
	// Reverse for big-endian display
	reversed := make([]byte, len(raw))
	for i, b := range raw {
		reversed[len(raw)-1-i] = b
	}
	return "0x" + hex.EncodeToString(reversed), nil
}

// ParseByteArray parses a ByteString/Buffer stack item into raw bytes.
// Null items parse to nil.
func ParseByteArray(item StackItem) ([]byte, error) {
	if item.Type == "Null" {
		return nil, nil
	}
	if item.Type != "ByteString" && item.Type != "Buffer" {
		return nil, fmt.Errorf("unexpected type: %s", item.Type)
	}
	return decodeBytes(item)
}

// ParseString parses a ByteString/Buffer stack item into a UTF-8 string.
// Null items parse to "".
func ParseString(item StackItem) (string, error) {
	b, err := ParseByteArray(item)
	if err != nil {
		return "", fmt.Errorf("unexpected type for string: %w", err)
	}
	return string(b), nil
}

// decodeBytes decodes a ByteString/Buffer value. Nodes encode these as hex;
// fall back to base64 for nodes that use it.
func decodeBytes(item StackItem) ([]byte, error) {
	var value string
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return nil, err
	}
	if b, err := hex.DecodeString(value); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(value)
}

// decodeHash160 decodes a script hash value. The known length disambiguates
// the encoding: a short base64 payload can look like valid hex, so only a
// decoding that yields exactly 20 bytes is accepted.
func decodeHash160(item StackItem) ([]byte, error) {
	var value string
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return nil, err
	}
	if b, err := hex.DecodeString(value); err == nil && len(b) == hash160Len {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(value); err == nil && len(b) == hash160Len {
		return b, nil
	}
	return nil, fmt.Errorf("value %q is not a %d-byte script hash", value, hash160Len)
}

const hash160Len = 20

// =============================================================================
// Generic Invocation Helpers
// =============================================================================

// InvokeStruct invokes a read-only contract method and parses the first stack
// item with the supplied parser.
func InvokeStruct[T any](ctx context.Context, c *Client, contractHash, method string, parse func(StackItem) (T, error), params ...ContractParam) (T, error) {
	var zero T

	result, err := c.InvokeFunction(ctx, contractHash, method, params)
	if err != nil {
		return zero, fmt.Errorf("invoke %s: %w", method, err)
	}
	if result.State != "HALT" {
		return zero, fmt.Errorf("%s failed: %s", method, result.Exception)
	}
	if len(result.Stack) == 0 {
		return zero, fmt.Errorf("%s returned empty stack", method)
	}

	return parse(result.Stack[0])
}

// InvokeBool invokes a read-only contract method returning a boolean.
func InvokeBool(ctx context.Context, c *Client, contractHash, method string, params ...ContractParam) (bool, error) {
	return InvokeStruct(ctx, c, contractHash, method, ParseBoolean, params...)
}

// InvokeInteger invokes a read-only contract method returning an integer.
func InvokeInteger(ctx context.Context, c *Client, contractHash, method string, params ...ContractParam) (*big.Int, error) {
	return InvokeStruct(ctx, c, contractHash, method, ParseInteger, params...)
}
