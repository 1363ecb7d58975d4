package util

import (
	"crypto/rand"

	"github.com/pkg/errors"
)

const base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const (
	PasteIDLen    = 7
	DeleteKeyLen  = 32
	ViewKeyLen    = 16
	DeviceCodeLen = 16
	TokenLen      = 32
)

// RandString returns n characters drawn uniformly from the base62 alphabet
// using rejection sampling so no character is favored.
func RandString(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", errors.Wrap(err, "rand fail")
		}
		for _, b := range buf {
			// 248 is the largest multiple of 62 that fits in a byte.
			if b >= 248 {
				continue
			}
			out = append(out, base62Chars[b%62])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// GenPasteID generates a 7-character id, retrying on the unlikely collision.
// 62^7 is about 3.5 trillion, so five retries is already paranoid.
func GenPasteID(exists func(string) (bool, error)) (string, error) {
	for retry := 0; retry < 5; retry++ {
		id, err := RandString(PasteIDLen)
		if err != nil {
			return "", err
		}
		taken, err := exists(id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", errors.New("id collision after 5 retries")
}

func NewDeleteKey() (string, error)  { return RandString(DeleteKeyLen) }
func NewViewKey() (string, error)    { return RandString(ViewKeyLen) }
func NewDeviceCode() (string, error) { return RandString(DeviceCodeLen) }
