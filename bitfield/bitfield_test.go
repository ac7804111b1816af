/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bitfield

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLittleEndianReads(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03, 0x04}
	require.Equal(t, uint16(0x0201), U16LE(b, 0))
	require.Equal(t, uint32(0x04030201), U32LE(b, 0))
}

func TestBigEndianReads(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03, 0x04}
	require.Equal(t, uint16(0x0102), U16BE(b, 0))
	require.Equal(t, uint32(0x01020304), U32BE(b, 0))
}

func TestSignExtension(t *testing.T) {
	b := []byte{0xFF, 0xFF}
	require.Equal(t, int16(-1), I16LE(b, 0))

	b32 := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	require.Equal(t, int32(-1), I32LE(b32, 0))
}

func TestI24SignExtension(t *testing.T) {
	neg := []byte{0xFF, 0xFF, 0xFF}
	require.Equal(t, int32(-1), I24LE(neg, 0))

	pos := []byte{0x01, 0x00, 0x00}
	require.Equal(t, int32(1), I24LE(pos, 0))
}

func TestBitsExtractsSubByteField(t *testing.T) {
	// status nibble in bits 4-7 of byte 0.
	b := []byte{0b0010_0001}
	require.Equal(t, uint32(1), Bits(b, 0, 4))
	require.Equal(t, uint32(2), Bits(b, 4, 4))
}
