package flash

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/plantdx/internal/logging"
)

const (
	// maxDetails bounds analyzer details kept in a cookie.
	maxDetails = 1500
	// maxCookieValue bounds the encoded value; browsers drop cookies above roughly 4 KiB.
	maxCookieValue = 3500
)

// CookieStore keeps the flash payload in the cookie itself.
type CookieStore struct {
	ttl    time.Duration
	logger *zap.Logger
}

var _ Store = (*CookieStore)(nil)

// NewCookieStore returns a store whose cookies expire after ttl.
func NewCookieStore(ttl time.Duration, logger *zap.Logger) *CookieStore {
	return &CookieStore{ttl: ttl, logger: logger.Named("flash_cookie")}
}

// Put writes data into the flash cookie. Details keep their tail and are shortened until
// the encoded value fits in a cookie.
func (s *CookieStore) Put(c *gin.Context, data Data) error {
	value, err := encodeCookieValue(data)
	if err != nil {
		return logging.NewOperationError("flash.encode", logging.RequestIDFromContext(c.Request.Context()), err)
	}
	setCookie(c, value, int(s.ttl.Seconds()))
	return nil
}

func encodeCookieValue(data Data) (string, error) {
	details := data.Details
	keep := min(len(details), maxDetails)
	for {
		data.Details = detailsTail(details, keep)
		value, err := encodeData(data)
		if err != nil {
			return "", err
		}
		if len(value) <= maxCookieValue || keep == 0 {
			return value, nil
		}
		keep -= max(1, (len(value)-maxCookieValue)*3/4)
		keep = max(keep, 0)
	}
}

// detailsTail keeps at most the last n bytes of details, starting on a rune boundary.
func detailsTail(details string, n int) string {
	if len(details) <= n {
		return details
	}
	start := len(details) - n
	for start < len(details) && !utf8.RuneStart(details[start]) {
		start++
	}
	return "…" + details[start:]
}

func encodeData(data Data) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Pop reads and clears the flash cookie. A malformed cookie yields empty Data.
func (s *CookieStore) Pop(c *gin.Context) (Data, error) {
	value, err := c.Cookie(CookieName)
	if errors.Is(err, http.ErrNoCookie) || value == "" {
		return Data{}, nil
	}
	clearCookie(c)

	var data Data
	payload, err := base64.RawURLEncoding.DecodeString(value)
	if err == nil {
		err = json.Unmarshal(payload, &data)
	}
	if err != nil {
		logging.WithOperation(s.logger, "flash.pop", logging.RequestIDFromContext(c.Request.Context())).
			Warn("discarding malformed flash cookie", zap.Error(err))
		return Data{}, nil
	}
	return data, nil
}
