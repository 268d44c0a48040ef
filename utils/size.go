package utils

import (
	"fmt"
)

const (
	Kilobyte = 1024
	Megabyte = 1024 * Kilobyte
)

// DataSize is a number of bytes printed with binary prefixes.
type DataSize float64

func (d DataSize) String() string {
	size, unit := float64(d), 0
	units := []string{"B", "KiB", "MiB", "GiB", "TiB"}
	for size >= Kilobyte && unit < len(units)-1 {
		size /= Kilobyte
		unit++
	}
	return fmt.Sprintf("%.2f %s", size, units[unit])
}
