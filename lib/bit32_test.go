package lib

import "testing"
import "fmt"

var _ = fmt.Sprintf("dummy")

func TestZerosin32(t *testing.T) {
	if x := Bit32(0).Zeros(); x != 32 {
		t.Errorf("expected %v, got %v", 32, x)
	} else if x := Bit32(1).Zeros(); x != 31 {
		t.Errorf("expected %v, got %v", 31, x)
	} else if x = Bit32(0xaaaaaaaa).Zeros(); x != 16 {
		t.Errorf("expected %v, got %v", 16, x)
	} else if x = Bit32(0x55555555).Zeros(); x != 16 {
		t.Errorf("expected %v, got %v", 16, x)
	}
}

func BenchmarkZerosin32(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Bit32(0xaaaaaaaa).Zeros()
	}
}

func TestFindFirstSet32(t *testing.T) {
	if x := Bit32(0).Findfirstset(); x != -1 {
		t.Errorf("expected %v, got %v", -1, x)
	} else if x = Bit32(0x80000000).Findfirstset(); x != 31 {
		t.Errorf("expected %v, got %v", 31, x)
	} else if x = Bit32(0x10).Findfirstset(); x != 4 {
		t.Errorf("expected %v, got %v", 4, x)
	}
}

func TestClearbit32(t *testing.T) {
	for i := uint8(0); i < 32; i++ {
		if x := Bit32(1 << i).Clearbit(i); x != 0 {
			t.Errorf("expected %v, got %v", 0, x)
		}
	}
}

func TestSetbit32(t *testing.T) {
	for i := uint8(0); i < 32; i++ {
		if x := Bit32(0).Setbit(i); x != uint32(1)<<i {
			t.Errorf("expected %v, got %v", uint32(1)<<i, x)
		}
	}
}
