package handlers

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/anstrom/netsweep/internal/api/middleware"
	"github.com/anstrom/netsweep/internal/logging"
)

const qrImageSize = 256

// QRHandler serves a QR code that opens the dashboard from a phone.
type QRHandler struct {
	publicURL string
	port      int
	lanIP     func() net.IP
	logger    *logging.Logger
}

// NewQRHandler creates a QR handler. When publicURL is empty the code points
// at http://<lan-ip>:<port>.
func NewQRHandler(publicURL string, port int, logger *logging.Logger) *QRHandler {
	return &QRHandler{
		publicURL: publicURL,
		port:      port,
		lanIP:     OutboundIP,
		logger:    logger.WithComponent("api.qr"),
	}
}

// DashboardURL returns the URL encoded in the QR code.
func (h *QRHandler) DashboardURL() string {
	if h.publicURL != "" {
		return strings.TrimRight(h.publicURL, "/")
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(h.lanIP().String(), fmt.Sprint(h.port)))
}

// QRCode returns a PNG QR code of the dashboard URL.
//
//	@Summary	Dashboard QR code
//	@Tags		system
//	@Produce	png
//	@Success	200	{file}		file
//	@Failure	500	{object}	StatusResponse
//	@Router		/qr/ [get]
func (h *QRHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	url := h.DashboardURL()
	png, err := qrcode.Encode(url, qrcode.Medium, qrImageSize)
	if err != nil {
		h.logger.Error("Failed to encode QR code", "request_id", middleware.GetRequestID(r), "url", url, "error", err)
		writeStatusError(w, r, http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Dashboard-URL", url)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// OutboundIP returns the address of the interface that routes to the LAN,
// or 127.0.0.1 when there is none. No packet is sent.
func OutboundIP() net.IP {
	conn, err := net.Dial("udp4", "10.255.255.255:1")
	if err != nil {
		return net.IPv4(127, 0, 0, 1)
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && addr.IP != nil {
		return addr.IP
	}
	return net.IPv4(127, 0, 0, 1)
}
