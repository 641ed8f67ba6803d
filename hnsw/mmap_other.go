//go:build !unix

package hnsw

import (
	"io"
	"os"
)

// Platforms without mmap support fall back to reading the file into memory;
// LoadMapped then behaves like Load without the checksum pass.
func mmapFile(f *os.File, size int) ([]byte, error) {
	data := make([]byte, size)
	if _, err := f.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return data, nil
}

func munmapFile(data []byte) error {
	return nil
}
