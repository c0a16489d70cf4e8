package attachment

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStorage(t *testing.T) (*LocalStorage, string) {
	t.Helper()
	dir := t.TempDir()
	storage, err := NewLocalStorage(dir)
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	return storage, dir
}

func TestNewLocalStorage(t *testing.T) {
	_, dir := newTestStorage(t)

	for _, v := range variants {
		info, err := os.Stat(filepath.Join(dir, v))
		if err != nil {
			t.Errorf("variant directory %q not created: %v", v, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("variant %q is not a directory", v)
		}
	}
}

func TestLocalStorage_SaveAndPath(t *testing.T) {
	storage, dir := newTestStorage(t)

	if err := storage.Save(Original, "test.txt", []byte("hello, world")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	want := filepath.Join(dir, Original, "test.txt")
	if got := storage.Path(Original, "test.txt"); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
	content, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("reading saved file: %v", err)
	}
	if string(content) != "hello, world" {
		t.Errorf("content = %q", content)
	}
}

func TestLocalStorage_SaveRefusesOverwrite(t *testing.T) {
	storage, _ := newTestStorage(t)

	if err := storage.Save("sm", "a.png", []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := storage.Save("sm", "a.png", []byte("2")); !errors.Is(err, ErrFileExists) {
		t.Errorf("second Save() error = %v, want ErrFileExists", err)
	}
}

func TestLocalStorage_Rejects(t *testing.T) {
	storage, _ := newTestStorage(t)

	tests := []struct {
		name     string
		variant  string
		filename string
		want     error
	}{
		{"empty name", Original, "", ErrInsecureFilename},
		{"dot file", Original, ".env", ErrInsecureFilename},
		{"traversal", Original, "..secret", ErrInsecureFilename},
		{"separator", Original, "a/b.txt", ErrInsecureFilename},
		{"backslash", Original, `a\b.txt`, ErrInsecureFilename},
		{"unknown variant", "lg", "a.png", ErrInvalidVariant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := storage.Save(tt.variant, tt.filename, []byte("x")); !errors.Is(err, tt.want) {
				t.Errorf("Save() error = %v, want %v", err, tt.want)
			}
			if err := storage.Delete(tt.variant, tt.filename); !errors.Is(err, tt.want) {
				t.Errorf("Delete() error = %v, want %v", err, tt.want)
			}
			if p := storage.Path(tt.variant, tt.filename); p != "" {
				t.Errorf("Path() = %q, want empty", p)
			}
		})
	}
}

func TestLocalStorage_DeleteIsIdempotent(t *testing.T) {
	storage, dir := newTestStorage(t)

	if err := storage.Save("md", "x.jpg", []byte("x")); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := storage.Delete("md", "x.jpg"); err != nil {
			t.Fatalf("Delete() #%d error = %v", i+1, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "md", "x.jpg")); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
}
