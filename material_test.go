package stacie

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestMaterial_EqualityIsConstantTimeCorrect(t *testing.T) {
	a := NewMaterial([]byte{1, 2, 3})
	b := NewMaterial([]byte{1, 2, 3})
	c := NewMaterial([]byte{1, 2, 4})

	if !a.Equal(b) {
		t.Fatal("expected equal materials to compare equal")
	}
	if a.Equal(c) {
		t.Fatal("expected differing materials to compare unequal")
	}
}

func TestMaterial_EqualRejectsDifferentLengths(t *testing.T) {
	a := NewMaterial([]byte{1, 2, 3})
	b := NewMaterial([]byte{1, 2})
	if a.Equal(b) {
		t.Fatal("expected materials of different lengths to compare unequal")
	}
}

func TestMaterial_ZeroOverwritesBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	m := NewMaterial(buf)
	m.Zero()
	if !bytes.Equal(buf, []byte{0, 0, 0, 0}) {
		t.Fatalf("expected underlying buffer zeroed, got %v", buf)
	}
}

func TestMaterial_StringNeverLeaksBytes(t *testing.T) {
	m := NewMaterial([]byte("super-secret-value"))
	s := fmt.Sprintf("%v", m)
	if strings.Contains(s, "super-secret-value") {
		t.Fatalf("Material.String leaked secret bytes: %q", s)
	}
}

func TestMaterial_LenReportsUnderlyingLength(t *testing.T) {
	m := NewMaterial(make([]byte, 64))
	if m.Len() != 64 {
		t.Fatalf("Len() = %d, want 64", m.Len())
	}
}
