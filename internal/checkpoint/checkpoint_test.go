package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "last_battle_id.txt"), zerolog.Nop())

	_, ok := s.Load()
	require.False(t, ok)
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_battle_id.txt")
	s := NewFileStore(path, zerolog.Nop())

	require.NoError(t, s.Save(2785756))
	id, ok := s.Load()
	require.True(t, ok)
	require.Equal(t, int64(2785756), id)

	require.NoError(t, s.Save(2785757))
	id, ok = s.Load()
	require.True(t, ok)
	require.Equal(t, int64(2785757), id)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "2785757\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLoadTolerance(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int64
		ok      bool
	}{
		{"plain", "42", 42, true},
		{"trailing newline", "42\n", 42, true},
		{"surrounding space", "  42 \r\n", 42, true},
		{"empty", "", 0, false},
		{"garbage", "not-a-number", 0, false},
		{"negative", "-5", 0, false},
		{"zero", "0", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cp.txt")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			id, ok := NewFileStore(path, zerolog.Nop()).Load()
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, id)
		})
	}
}

func TestSaveRejectsNonPositive(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "cp.txt"), zerolog.Nop())
	require.Error(t, s.Save(0))
}

func TestSaveIntoMissingDirectory(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "missing", "cp.txt"), zerolog.Nop())
	require.Error(t, s.Save(10))
}
