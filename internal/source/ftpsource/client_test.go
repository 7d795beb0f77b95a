package ftpsource

import (
	"context"
	"fmt"
	"net/textproto"
	"testing"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigAddr(t *testing.T) {
	assert.Equal(t, "ftp.example.com:21", Config{Host: "ftp.example.com"}.Addr())
	assert.Equal(t, "10.0.0.1:2121", Config{Host: "10.0.0.1", Port: 2121}.Addr())
}

func TestOperationsRequireConnection(t *testing.T) {
	c := New(Config{Host: "localhost"})
	ctx := context.Background()

	_, err := c.List(ctx, "/")
	require.ErrorIs(t, err, errNotConnected)
	_, err = c.Stat(ctx, "/a")
	require.ErrorIs(t, err, errNotConnected)
	require.ErrorIs(t, c.Fetch(ctx, "/a", nil), errNotConnected)
	require.ErrorIs(t, c.Delete(ctx, "/a"), errNotConnected)
	assert.NoError(t, c.Disconnect())
}

func TestFilesKeepsOnlyPlainFiles(t *testing.T) {
	mt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	got := files("/out", []*ftp.Entry{
		{Name: "a.xml", Type: ftp.EntryTypeFile, Size: 3, Time: mt},
		{Name: "sub", Type: ftp.EntryTypeFolder},
		{Name: "link", Type: ftp.EntryTypeLink},
		{Name: "/out/b.xml", Type: ftp.EntryTypeFile, Size: 4, Time: mt},
		nil,
	})
	require.Len(t, got, 2)
	assert.Equal(t, "a.xml", got[0].Name)
	assert.Equal(t, "/out/a.xml", got[0].Path)
	assert.Equal(t, int64(3), got[0].Size)
	assert.Equal(t, "b.xml", got[1].Name)
	assert.Equal(t, "/out/b.xml", got[1].Path)
}

func TestIsUnavailable(t *testing.T) {
	err := fmt.Errorf("list: %w", &textproto.Error{Code: ftp.StatusFileUnavailable, Msg: "No such file"})
	assert.True(t, isUnavailable(err))
	assert.False(t, isUnavailable(&textproto.Error{Code: 421, Msg: "closing"}))
	assert.False(t, isUnavailable(nil))
}
