package csvtable

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var header = []string{"id", "name"}

func TestOpen_CreatesFileWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "table.csv")

	tbl, err := Open(path, header)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n", string(data))

	rows, err := tbl.Read()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOpen_KeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n1,alice\n"), 0o644))

	tbl, err := Open(path, header)
	require.NoError(t, err)

	rows, err := tbl.Read()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "alice"}}, rows)
}

func TestWriteAndRead_QuotedFields(t *testing.T) {
	tbl, err := Open(filepath.Join(t.TempDir(), "table.csv"), header)
	require.NoError(t, err)

	want := [][]string{
		{"1", "lunch, with \"friends\""},
		{"2", "multi\nline"},
	}
	require.NoError(t, tbl.Write(want))

	rows, err := tbl.Read()
	require.NoError(t, err)
	assert.Equal(t, want, rows)
}

func TestRead_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
		line    int
	}{
		{"empty file", "", 1},
		{"wrong header", "id,title\n1,a\n", 1},
		{"short row", "id,name\n1,a\n2\n", 3},
		{"long row", "id,name\n1,a,b\n", 2},
		{"bad quoting", "id,name\n1,\"a\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "table.csv")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			tbl, err := Open(path, header)
			require.NoError(t, err)

			_, err = tbl.Read()
			require.ErrorIs(t, err, ErrCorruptRecord)

			var cre *CorruptRecordError
			require.True(t, errors.As(err, &cre))
			assert.Equal(t, tt.line, cre.Line)
		})
	}
}

func TestUpdate_ErrorLeavesFileUntouched(t *testing.T) {
	tbl, err := Open(filepath.Join(t.TempDir(), "table.csv"), header)
	require.NoError(t, err)
	require.NoError(t, tbl.Write([][]string{{"1", "alice"}}))

	boom := errors.New("boom")
	err = tbl.Update(func(rows [][]string) ([][]string, error) {
		return append(rows, []string{"2", "bob"}), boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := tbl.Read()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestUpdate_SerializesWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.csv")
	// Two handles on the same path share one lock.
	a, err := Open(path, header)
	require.NoError(t, err)
	b, err := Open(path, header)
	require.NoError(t, err)

	const perHandle = 25
	var wg sync.WaitGroup
	for _, tbl := range []*Table{a, b} {
		wg.Add(1)
		go func(tbl *Table) {
			defer wg.Done()
			for i := 0; i < perHandle; i++ {
				err := tbl.Update(func(rows [][]string) ([][]string, error) {
					return append(rows, []string{strconv.Itoa(len(rows) + 1), "x"}), nil
				})
				assert.NoError(t, err)
			}
		}(tbl)
	}
	wg.Wait()

	rows, err := a.Read()
	require.NoError(t, err)
	assert.Len(t, rows, 2*perHandle, "no update may be lost")
}

func TestWriteFile_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.csv")
	require.NoError(t, WriteFile(path, header, [][]string{{"1", "a"}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "table.csv", entries[0].Name())
}

func TestEncodeParse_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rows := [][]string{{"1", "a"}, {"2", "b,c"}}
	require.NoError(t, Encode(&buf, header, rows))

	got, err := Parse(&buf, "export", header)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}
