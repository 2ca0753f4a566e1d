package compression

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in   string
		want Algorithm
	}{
		{"", AlgorithmNone},
		{"none", AlgorithmNone},
		{"GZIP", AlgorithmGzip},
		{" zstd ", AlgorithmZstd},
		{"lz4", AlgorithmLZ4},
		{"snappy", AlgorithmSnappy},
	}
	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseAlgorithm("brotli")
	assert.Error(t, err)
}

func TestStreamRoundTrip(t *testing.T) {
	payload := strings.Repeat("REPORT - FROM 1970-01-01 00:00:01Z TO 1970-01-01 00:00:11Z EXCLUSIVE\n", 50)

	for _, alg := range []Algorithm{AlgorithmNone, AlgorithmGzip, AlgorithmZstd, AlgorithmLZ4, AlgorithmSnappy} {
		t.Run(string(alg), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(alg, &buf, 0)
			require.NoError(t, err)

			// two flushes in the middle of the stream must not break decoding
			half := len(payload) / 2
			_, err = w.Write([]byte(payload[:half]))
			require.NoError(t, err)
			require.NoError(t, w.Flush())
			_, err = w.Write([]byte(payload[half:]))
			require.NoError(t, err)
			require.NoError(t, w.Flush())
			require.NoError(t, w.Close())

			assert.Equal(t, int64(len(payload)), w.BytesIn())
			assert.Equal(t, int64(buf.Len()), w.BytesOut())
			if alg != AlgorithmNone {
				assert.Less(t, w.BytesOut(), w.BytesIn())
			}

			r, err := NewReader(alg, &buf)
			require.NoError(t, err)
			defer r.Close()
			decoded, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, payload, string(decoded))
		})
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".gz", AlgorithmGzip.Extension())
	assert.Equal(t, ".zst", AlgorithmZstd.Extension())
	assert.Equal(t, "", AlgorithmNone.Extension())
}

func TestNewWriterRejectsUnknownAlgorithm(t *testing.T) {
	_, err := NewWriter(Algorithm("brotli"), io.Discard, 0)
	assert.Error(t, err)
	_, err = NewReader(Algorithm("brotli"), strings.NewReader(""))
	assert.Error(t, err)
}
