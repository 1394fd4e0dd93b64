//go:build linux

package gpiocapture

import (
	"io"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "pwmctl-capture"

func watchGPIOLine(chip string, offset int, handler func(Edge)) (io.Closer, error) {
	l, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithConsumer(consumer),
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			handler(Edge{Rising: evt.Type == gpiocdev.LineEventRisingEdge, At: evt.Timestamp})
		}))
	if err != nil {
		return nil, err
	}
	return l, nil
}
