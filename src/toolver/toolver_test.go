package toolver

import "testing"

func TestExtract(t *testing.T) {
	tests := []struct {
		banner string
		want   string
	}{
		{"Android Debug Bridge version 1.0.41\nVersion 34.0.5-10900879\n", "1.0.41"},
		{"gsutil version: 5.27", "5.27.0"},
		{"build 2024\nv2.1.0", "2.1.0"},
	}
	for _, tt := range tests {
		v, err := Extract(tt.banner)
		if err != nil {
			t.Fatalf("Extract(%q): %v", tt.banner, err)
		}
		if v.String() != tt.want {
			t.Errorf("Extract(%q) = %s, want %s", tt.banner, v, tt.want)
		}
	}
}

func TestExtractNoVersion(t *testing.T) {
	if _, err := Extract("command not found"); err == nil {
		t.Fatal("expected error")
	}
}

func TestCheck(t *testing.T) {
	if _, err := Check("adb", "Android Debug Bridge version 1.0.41", ">= 1.0.31"); err != nil {
		t.Fatalf("expected pass: %v", err)
	}
	if _, err := Check("adb", "Android Debug Bridge version 1.0.29", ">= 1.0.31"); err == nil {
		t.Fatal("expected constraint failure")
	}
	if _, err := Check("adb", "garbage", ""); err != nil {
		t.Fatalf("empty constraint must pass: %v", err)
	}
	if _, err := Check("adb", "1.0.41", "not a constraint"); err == nil {
		t.Fatal("expected invalid constraint error")
	}
}
