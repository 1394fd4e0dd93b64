//go:build !linux

package gpiocapture

import (
	"fmt"
	"io"
)

func watchGPIOLine(chip string, offset int, handler func(Edge)) (io.Closer, error) {
	return nil, fmt.Errorf("gpiocapture: unsupported on this platform")
}
