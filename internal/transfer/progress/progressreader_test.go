package progress

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressReader_ReportsEveryInterval(t *testing.T) {
	var reports []int64

	pr := NewReader(strings.NewReader(strings.Repeat("x", 100)), 0, 30, func(written, _ int64) {
		reports = append(reports, written)
	})

	buf := make([]byte, 10)
	for {
		_, err := pr.Read(buf)
		if err == io.EOF {
			break
		}

		require.NoError(t, err)
	}

	assert.Equal(t, []int64{30, 60, 90, 100}, reports)
	assert.Equal(t, int64(100), pr.Written())
}

func TestProgressReader_ReportsFirstFivePercent(t *testing.T) {
	var reports []int64

	pr := NewReader(strings.NewReader(strings.Repeat("x", 200)), 200, 1000, func(written, total int64) {
		assert.Equal(t, int64(200), total)

		reports = append(reports, written)
	})

	data, err := io.ReadAll(io.LimitReader(pr, 10))
	require.NoError(t, err)
	assert.Len(t, data, 10)
	assert.Equal(t, []int64{10}, reports)
}

func TestProgressReader_NoCallback(t *testing.T) {
	pr := NewReader(strings.NewReader("abc"), 3, 1, nil)

	data, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}
