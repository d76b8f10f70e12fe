package fetch

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/accident.report/internal/fsutil"
	"github.com/banshee-data/accident.report/internal/httputil"
	"github.com/banshee-data/accident.report/internal/monitoring"
)

func init() { monitoring.SetLogger(nil) }

func frames(n int, err error) ProbeFunc {
	return func(context.Context, string) (int, error) { return n, err }
}

func TestDownload_OK(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	client := httputil.NewMockHTTPClient().AddResponse(http.StatusOK, []byte("mp4-bytes"))
	d := NewDownloader(client, fs, frames(120, nil))

	path, err := d.Download(context.Background(), "https://bucket.example/v?sig=1", "/work/run", "../vid 1")
	require.NoError(t, err)
	assert.Equal(t, "/work/run/vid_1.mp4", path)

	data, err := fs.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mp4-bytes", string(data))
	assert.Equal(t, "sig=1", client.GetRequest(0).URL.RawQuery)
}

func TestDownload_Errors(t *testing.T) {
	tests := []struct {
		name    string
		client  *httputil.MockHTTPClient
		probe   Prober
		max     int64
		wantErr error
	}{
		{
			name:    "transport error",
			client:  httputil.NewMockHTTPClient().AddErrorResponse(errors.New("dial tcp: refused")),
			wantErr: ErrDownload,
		},
		{
			name:    "expired url",
			client:  httputil.NewMockHTTPClient().AddResponse(http.StatusForbidden, []byte("<Error/>")),
			wantErr: ErrDownload,
		},
		{
			name:    "too large",
			client:  httputil.NewMockHTTPClient().AddResponse(http.StatusOK, []byte("0123456789")),
			max:     4,
			wantErr: ErrDownload,
		},
		{
			name:    "undecodable",
			client:  httputil.NewMockHTTPClient().AddResponse(http.StatusOK, []byte("junk")),
			probe:   frames(0, errors.New("decoder refused file")),
			wantErr: ErrInvalidVideo,
		},
		{
			name:    "no frames",
			client:  httputil.NewMockHTTPClient().AddResponse(http.StatusOK, []byte("junk")),
			probe:   frames(0, nil),
			wantErr: ErrInvalidVideo,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := fsutil.NewMemoryFileSystem()
			d := NewDownloader(tt.client, fs, tt.probe)
			d.MaxBytes = tt.max

			_, err := d.Download(context.Background(), "https://bucket.example/v", "/work/run", "v")
			require.ErrorIs(t, err, tt.wantErr)
			assert.False(t, fs.Exists("/work/run/v.mp4"), "failed download must not leave a file")
		})
	}
}
