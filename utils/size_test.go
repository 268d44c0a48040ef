package utils_test

import (
	"testing"

	"github.com/NethermindEth/katana/utils"
	"github.com/stretchr/testify/assert"
)

func TestDataSize(t *testing.T) {
	tests := []struct {
		size utils.DataSize
		want string
	}{
		{0, "0.00 B"},
		{1023, "1023.00 B"},
		{utils.Kilobyte, "1.00 KiB"},
		{1.5 * utils.Megabyte, "1.50 MiB"},
		{3 * 1024 * utils.Megabyte, "3.00 GiB"},
		{2048 * 1024 * 1024 * utils.Megabyte, "2048.00 TiB"},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, test.size.String())
	}
}
