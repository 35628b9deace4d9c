package jce

import (
	"fmt"

	"github.com/udisondev/goicq/internal/packet"
)

// requestPacketVersion is the uni-packet version every wrapper is sent with.
const requestPacketVersion = 3

// EncodeWrapper builds a request packet around body, a map from request name
// to a struct encoded with EncodeStruct.
func EncodeWrapper(body map[string][]byte, servant, funcName string, requestID int32) ([]byte, error) {
	data, err := Encode([]any{body})
	if err != nil {
		return nil, fmt.Errorf("encoding wrapper body: %w", err)
	}
	return Encode([]any{
		nil,
		int16(requestPacketVersion),
		0,
		0,
		requestID,
		servant,
		funcName,
		data,
		0,
		map[string]string{},
		map[string]string{},
	})
}

// DecodeWrapper unpacks a request packet and returns the fields of the first
// struct found in its body.
func DecodeWrapper(b []byte) (Values, error) {
	outer, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decoding wrapper: %w", err)
	}
	inner, err := Decode(outer.Bytes(7))
	if err != nil {
		return nil, fmt.Errorf("decoding wrapper body: %w", err)
	}
	m := inner.Map(0)
	if len(m) == 0 {
		return nil, fmt.Errorf("decoding wrapper body: %w: empty map", packet.ErrDecode)
	}

	nested := m[0].Value
	// version 2 bodies nest one more map level: name → type → bytes
	if mm, ok := nested.(Map); ok {
		if len(mm) == 0 {
			return nil, fmt.Errorf("decoding wrapper body: %w: empty inner map", packet.ErrDecode)
		}
		nested = mm[0].Value
	}
	raw, ok := nested.([]byte)
	if !ok {
		return nil, fmt.Errorf("decoding wrapper body: %w: unexpected %T", packet.ErrDecode, nested)
	}

	st, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding wrapped struct: %w", err)
	}
	return st.Struct(0), nil
}
