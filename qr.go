package main

import (
	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// channelQR encodes link as a PNG QR code.
func channelQR(link string) ([]byte, error) {
	return qrcode.Encode(link, qrcode.Medium, qrSize)
}
