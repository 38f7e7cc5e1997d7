package services

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

const (
	defaultQRSize = 256
	maxQRSize     = 2048
)

type QROptions struct {
	Content string
	Size    int
	FgColor string // hex, e.g. "#000000"
	BgColor string
}

// QRService renders share-link QR codes for affiliate redirect URLs.
type QRService struct {
	baseURL string
}

func NewQRService(baseURL string) *QRService {
	return &QRService{baseURL: strings.TrimRight(baseURL, "/")}
}

// ShareLink is the public redirect URL for an affiliate, with an optional
// campaign tag.
func (s *QRService) ShareLink(identifier, campaign string) string {
	link := s.baseURL + "/go/" + url.PathEscape(identifier)
	if campaign = strings.TrimSpace(campaign); campaign != "" {
		link += "?campaign=" + url.QueryEscape(campaign)
	}
	return link
}

func (s *QRService) AffiliatePNG(identifier, campaign string, size int) ([]byte, error) {
	return s.GenerateQRCode(QROptions{Content: s.ShareLink(identifier, campaign), Size: size})
}

func (s *QRService) AffiliateSVG(identifier, campaign string) (string, error) {
	return s.GenerateQRCodeSVG(QROptions{Content: s.ShareLink(identifier, campaign)})
}

func (s *QRService) GenerateQRCode(opts QROptions) ([]byte, error) {
	size := opts.Size
	if size <= 0 {
		size = defaultQRSize
	}
	if size > maxQRSize {
		return nil, validationError("qr size must be at most %d", maxQRSize)
	}

	qr, err := qrcode.New(opts.Content, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	qr.ForegroundColor = s.parseHexColor(opts.FgColor, color.Black)
	qr.BackgroundColor = s.parseHexColor(opts.BgColor, color.White)

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(size)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *QRService) GenerateQRCodeSVG(opts QROptions) (string, error) {
	qr, err := qrcode.New(opts.Content, qrcode.Medium)
	if err != nil {
		return "", err
	}
	fg, bg := opts.FgColor, opts.BgColor
	if fg == "" {
		fg = "#000000"
	}
	if bg == "" {
		bg = "#FFFFFF"
	}

	qr.DisableBorder = true
	bitmap := qr.Bitmap()
	size := len(bitmap)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" shape-rendering="crispEdges">`, size, size))
	sb.WriteString(fmt.Sprintf(`<rect width="100%%" height="100%%" fill="%s"/>`, bg))
	sb.WriteString(fmt.Sprintf(`<path fill="%s" d="`, fg))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if bitmap[y][x] {
				sb.WriteString(fmt.Sprintf("M%d %dh1v1h-1z ", x, y))
			}
		}
	}
	sb.WriteString(`"/></svg>`)
	return sb.String(), nil
}

func (s *QRService) parseHexColor(hex string, fallback color.Color) color.Color {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return fallback
	}

	nibble := func(c byte) byte {
		switch {
		case c >= '0' && c <= '9':
			return c - '0'
		case c >= 'a' && c <= 'f':
			return c - 'a' + 10
		case c >= 'A' && c <= 'F':
			return c - 'A' + 10
		}
		return 0
	}

	return color.RGBA{
		R: nibble(hex[0])<<4 + nibble(hex[1]),
		G: nibble(hex[2])<<4 + nibble(hex[3]),
		B: nibble(hex[4])<<4 + nibble(hex[5]),
		A: 255,
	}
}
