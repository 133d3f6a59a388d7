// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package encode provides the byte-encoding helpers shared by the credential
// store and the encryption package: big-endian integer coders, versioned
// blob building/parsing, and randomness.
package encode

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

var (
	// IntCoder is the wallet-wide integer byte-encoding order. IntCoder must
	// be BigEndian so that variable length data encodings work as intended.
	IntCoder = binary.BigEndian
	// ByteFalse is a byte-slice representation of boolean false.
	ByteFalse = []byte{0}
	// ByteTrue is a byte-slice representation of boolean true.
	ByteTrue = []byte{1}
	// MaxDataLen is the largest byte slice that can be stored when using
	// (BuildyBytes).AddData.
	MaxDataLen = 0x00fe_ffff
)

// Uint32Bytes converts the uint32 to a length-4, big-endian encoded byte
// slice.
func Uint32Bytes(i uint32) []byte {
	b := make([]byte, 4)
	IntCoder.PutUint32(b, i)
	return b
}

// Uint64Bytes converts the uint64 to a length-8, big-endian encoded byte
// slice.
func Uint64Bytes(i uint64) []byte {
	b := make([]byte, 8)
	IntCoder.PutUint64(b, i)
	return b
}

// BytesToUint64 converts the length-8, big-endian encoded byte slice to a
// uint64.
func BytesToUint64(b []byte) uint64 {
	return IntCoder.Uint64(b[:8])
}

// CopySlice makes a copy of the slice.
func CopySlice(b []byte) []byte {
	newB := make([]byte, len(b))
	copy(newB, b)
	return newB
}

// RandomBytes returns a byte slice with the specified length of random bytes.
func RandomBytes(len int) []byte {
	bytes := make([]byte, len)
	_, err := rand.Read(bytes)
	if err != nil {
		panic("error reading random bytes: " + err.Error())
	}
	return bytes
}

// ClearBytes zeroes the byte slice. Use this on any buffer that held secret
// key material before releasing it.
func ClearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// UnixMilliU returns the unix time in milliseconds as a uint64.
func UnixMilliU(t time.Time) uint64 {
	return uint64(t.UnixMilli())
}

// DecodeUTime interprets bytes as a uint64 millisecond Unix timestamp and
// creates a time.Time.
func DecodeUTime(b []byte) time.Time {
	return time.UnixMilli(int64(BytesToUint64(b)))
}

// ExtractPushes parses the linearly-encoded 2D byte slice into a slice of
// slices. Empty pushes are nil slices.
func ExtractPushes(b []byte, preAlloc ...int) ([][]byte, error) {
	allocPushes := 2
	if len(preAlloc) > 0 {
		allocPushes = preAlloc[0]
	}
	pushes := make([][]byte, 0, allocPushes)
	for {
		if len(b) == 0 {
			break
		}
		l := int(b[0])
		b = b[1:]
		if l == 255 {
			if len(b) < 2 {
				return nil, fmt.Errorf("2 bytes not available for data length")
			}
			l = int(IntCoder.Uint16(b[:2]))
			if l < 255 {
				// Really a uint32 capped at MaxDataLen, and we are looking at
				// the top two bytes. Decode all four.
				if len(b) < 4 {
					return nil, fmt.Errorf("4 bytes not available for 32-bit data length")
				}
				l = int(IntCoder.Uint32(b[:4]))
				b = b[4:]
			} else {
				b = b[2:]
			}
		}
		if len(b) < l {
			return nil, fmt.Errorf("data too short for pop of %d bytes", l)
		}
		if l == 0 {
			pushes = append(pushes, nil)
			continue
		}
		pushes = append(pushes, b[:l])
		b = b[l:]
	}
	return pushes, nil
}

// DecodeBlob decodes a versioned blob into its version and the pushes
// extracted from its data. Empty pushes will be nil.
func DecodeBlob(b []byte, preAlloc ...int) (byte, [][]byte, error) {
	if len(b) == 0 {
		return 0, nil, fmt.Errorf("zero length blob not allowed")
	}
	ver := b[0]
	b = b[1:]
	pushes, err := ExtractPushes(b, preAlloc...)
	return ver, pushes, err
}

// BuildyBytes is a byte-slice with an AddData method for building linearly
// encoded 2D byte slices. The AddData method supports chaining. The canonical
// use case is to create "versioned blobs", where the BuildyBytes is
// instantiated with a single version byte, and then data pushes are added
// using the AddData method. Example use:
//
//	version := 0
//	b := BuildyBytes{version}.AddData(data1).AddData(data2)
//
// The versioned blob can be decoded with DecodeBlob to separate the version
// byte and the payload.
type BuildyBytes []byte

// AddData adds the data to the BuildyBytes, and returns the new BuildyBytes.
// The data has a hard-coded length limit of MaxDataLen bytes. The caller
// should ensure the data is not larger since AddData panics if it is.
func (b BuildyBytes) AddData(d []byte) BuildyBytes {
	l := len(d)
	var lBytes []byte
	if l >= 0xff {
		if l > MaxDataLen {
			panic("cannot use AddData for pushes > 16711679 bytes")
		}
		var i []byte
		if l > math.MaxUint16 {
			// The decoder inspects the top two bytes (big endian), switching
			// to uint32 if under 255.
			i = make([]byte, 4)
			IntCoder.PutUint32(i, uint32(l))
		} else {
			i = make([]byte, 2)
			IntCoder.PutUint16(i, uint16(l))
		}
		lBytes = append([]byte{0xff}, i...)
	} else {
		lBytes = []byte{byte(l)}
	}
	return append(b, append(lBytes, d...)...)
}
