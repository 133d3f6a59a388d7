// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package encode

import (
	"bytes"
	"testing"
	"time"
)

var (
	tEmpty = []byte{}
	tA     = []byte{0xaa}
	tB     = []byte{0xbb, 0xbb}
)

func TestBuildyBytes(t *testing.T) {
	type test struct {
		pushes [][]byte
		exp    []byte
	}
	tests := []test{
		{
			pushes: [][]byte{tA},
			exp:    []byte{0x01, 0xaa},
		},
		{
			pushes: [][]byte{tA, tB},
			exp:    []byte{1, 0xaa, 2, 0xbb, 0xbb},
		},
		{
			pushes: [][]byte{tA, nil},
			exp:    []byte{1, 0xaa, 0},
		},
		{
			pushes: [][]byte{tEmpty, tEmpty},
			exp:    []byte{0, 0},
		},
	}
	for i, tt := range tests {
		var b BuildyBytes
		for _, p := range tt.pushes {
			b = b.AddData(p)
		}
		if !bytes.Equal(b, tt.exp) {
			t.Fatalf("test %d failed", i)
		}
	}
}

func TestDecodeBlob(t *testing.T) {
	longBlob := RandomBytes(255)
	type test struct {
		v       byte
		b       []byte
		exp     [][]byte
		wantErr bool
	}
	tests := []test{
		{
			v:   1,
			b:   BuildyBytes{1}.AddData(nil).AddData(tEmpty).AddData(tA),
			exp: [][]byte{tEmpty, tEmpty, tA},
		},
		{
			v:   2,
			b:   BuildyBytes{2}.AddData(tB).AddData(longBlob),
			exp: [][]byte{tB, longBlob},
		},
		{
			b:       []byte{0x01, 0x02}, // missing two bytes
			wantErr: true,
		},
	}
	for i, tt := range tests {
		ver, pushes, err := DecodeBlob(tt.b)
		if (err != nil) != tt.wantErr {
			t.Fatalf("test %d: %v", i, err)
		}
		if tt.wantErr {
			continue
		}
		if ver != tt.v {
			t.Fatalf("test %d: wanted version %d, got %d", i, tt.v, ver)
		}
		if len(pushes) != len(tt.exp) {
			t.Fatalf("wrong number of pushes. wanted %d, got %d", len(tt.exp), len(pushes))
		}
		for j, push := range pushes {
			if !bytes.Equal(tt.exp[j], push) {
				t.Fatalf("push %d:%d incorrect. wanted %x, got %x", i, j, tt.exp[j], push)
			}
		}
	}
}

func TestClearBytes(t *testing.T) {
	b := RandomBytes(32)
	ClearBytes(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not cleared", i)
		}
	}
}

func TestTimeCoding(t *testing.T) {
	// Millisecond precision survives the round trip, anything finer does
	// not.
	stamp := time.Now().Truncate(time.Millisecond).UTC()
	reStamp := DecodeUTime(Uint64Bytes(UnixMilliU(stamp)))
	if !stamp.Equal(reStamp) {
		t.Fatalf("%s re-encoded as %s", stamp, reStamp)
	}
}
