package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolve(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "file.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		rel     string
		wantErr error
	}{
		{"plain file", "sub/file.txt", nil},
		{"root itself", ".", nil},
		{"nonexistent child", "sub/new.txt", nil},
		{"dotdot escape", "../etc/passwd", ErrPathEscape},
		{"nested dotdot escape", "sub/../../outside", ErrPathEscape},
		{"absolute outside", "/etc/passwd", ErrPathEscape},
		{"env file", ".env", ErrSensitivePath},
		{"env variant", ".env.production", ErrSensitivePath},
		{"env sample allowed", ".env.example", nil},
		{"env sample template", ".env.template", nil},
		{"reserved dir", ".aistaff/config.json", ErrSensitivePath},
		{"reserved dir nested", "sub/.jetlinks-ai/x", ErrSensitivePath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(root, tt.rel)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve(%q) err = %v, want %v", tt.rel, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) unexpected error: %v", tt.rel, err)
			}
			rootReal, _ := filepath.EvalSymlinks(root)
			if got != rootReal && !isInside(got, rootReal) {
				t.Fatalf("Resolve(%q) = %q escapes root %q", tt.rel, got, rootReal)
			}
		})
	}
}

func TestResolveSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(target, []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := Resolve(root, "link.txt"); !errors.Is(err, ErrPathEscape) {
		t.Fatalf("symlink escape: err = %v, want ErrPathEscape", err)
	}
}

func TestResolveSymlinkInside(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "real.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "alias.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if _, err := Resolve(root, "alias.txt"); err != nil {
		t.Fatalf("internal symlink should resolve: %v", err)
	}
}

func TestRelativeToRoundTrip(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "a", "b"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "a", "b", "c.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	abs, err := Resolve(root, "a/b/c.txt")
	if err != nil {
		t.Fatal(err)
	}
	rel, err := RelativeTo(root, abs)
	if err != nil {
		t.Fatal(err)
	}
	abs2, err := Resolve(root, rel)
	if err != nil {
		t.Fatal(err)
	}
	if abs2 != abs {
		t.Fatalf("round trip: %q != %q", abs2, abs)
	}
}
