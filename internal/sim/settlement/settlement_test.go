package settlement

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWithdrawInfoLayout(t *testing.T) {
	sender, err := EncodeAddress("0x52908400098527886E0F7030069857D2E4169EE7")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	w := NewWithdrawInfo(5, 0, 0, 1000, sender)
	if w.OpInfo != 7+(5<<8) {
		t.Fatalf("opinfo = %d", w.OpInfo)
	}
	b := w.AppendBytes(nil)
	if len(b) != InfoSize {
		t.Fatalf("size = %d, want %d", len(b), InfoSize)
	}
	if binary.BigEndian.Uint64(b[0:8]) != w.OpInfo {
		t.Fatalf("opinfo not big endian")
	}
	// amount words are written most significant first: the low word is last.
	if binary.BigEndian.Uint64(b[16+24:16+32]) != 1000 || binary.BigEndian.Uint64(b[16:24]) != 0 {
		t.Fatalf("amount layout wrong: %x", b[16:48])
	}
	if !bytes.Equal(b[48:], sender[:]) {
		t.Fatalf("sender not copied")
	}
}

func TestEncodeAddress(t *testing.T) {
	a, err := EncodeAddress("0x52908400098527886E0F7030069857D2E4169EE7")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if a[0] != 0x52 || a[19] != 0xe7 || a[20] != 0 {
		t.Fatalf("unexpected packing: %x", a)
	}
	for _, bad := range []string{"0x1234", "zz", ""} {
		if _, err := EncodeAddress(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestLedgerFlushDrains(t *testing.T) {
	var l Ledger
	l.Append(NewWithdrawInfo(1, 0, 0, 10, [32]byte{}))
	l.Append(NewWithdrawInfo(2, 0, 0, 20, [32]byte{}))
	if l.Len() != 2 || len(l.Pending()) != 2 {
		t.Fatalf("len = %d", l.Len())
	}
	out := l.Flush()
	if len(out) != 2*InfoSize {
		t.Fatalf("flushed %d bytes", len(out))
	}
	if l.Len() != 0 || len(l.Flush()) != 0 {
		t.Fatalf("flush should drain")
	}
	l.Restore([]WithdrawInfo{NewWithdrawInfo(3, 0, 0, 1, [32]byte{})})
	if l.Len() != 1 {
		t.Fatalf("restore")
	}
}
