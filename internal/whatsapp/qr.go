package whatsapp

import (
	"encoding/base64"

	"github.com/skip2/go-qrcode"
)

// qrSize is the edge length of the rendered QR image in pixels.
const qrSize = 256

// RenderQR encodes a pairing code as a PNG data URL.
func RenderQR(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
