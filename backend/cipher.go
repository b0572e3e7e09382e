package backend

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"

	"github.com/thistonyuncle/docstore/dberrors"
)

// PageSize is the fixed page granularity the ESSIV cipher operates on, per
// spec.md §4.2.
const PageSize = 4096

// PageCipher implements per-page AES-256-CBC encryption with an
// ESSIV-derived IV, per spec.md §4.2. The log-structured (bbolt) backend
// applies it to bucket values split into PageSize chunks (see
// encryptValue), not to raw file pages; the SQL backend has no page-level hook
// and relies on filesystem/at-rest encryption instead (spec.md §4.1 notes
// the SQL backend does not implement getByOffset either — neither backend
// is required to support every optional capability).
type PageCipher struct {
	key   []byte // K
	ivKey cipher.Block // AES block keyed by K_iv = SHA256(K)
}

// NewPageCipher builds a PageCipher from a 256-bit key. algorithm is
// checked by the caller (store/datafile.go) against the set of algorithms
// compiled in; today only "AES256" is supported, so an unknown algorithm
// must surface as UnsupportedEncryption before NewPageCipher is ever
// called.
func NewPageCipher(key []byte) (*PageCipher, error) {
	if len(key) != 32 {
		return nil, dberrors.New(dberrors.InvalidParameter, "page cipher key must be 32 bytes")
	}
	ivKeyBytes := sha256.Sum256(key)
	ivBlock, err := aes.NewCipher(ivKeyBytes[:])
	if err != nil {
		return nil, dberrors.Wrap(dberrors.UnsupportedEncryption, dberrors.DomainCore, "aes init failed", err)
	}
	return &PageCipher{key: append([]byte(nil), key...), ivKey: ivBlock}, nil
}

// essiv derives the IV for page p: AES-encrypt the big-endian, 16-byte
// zero-padded page number with K_iv.
func (c *PageCipher) essiv(page uint64) []byte {
	var block [16]byte
	binary.BigEndian.PutUint64(block[8:], page)
	iv := make([]byte, 16)
	c.ivKey.Encrypt(iv, block[:])
	return iv
}

// EncryptPage encrypts one PageSize-byte page, returning a new slice (the
// input is not mutated).
func (c *PageCipher) EncryptPage(page uint64, plaintext []byte) ([]byte, error) {
	if len(plaintext) != PageSize {
		return nil, dberrors.New(dberrors.InvalidParameter, "encryptPage: not a whole aligned page")
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.UnsupportedEncryption, dberrors.DomainCore, "aes init failed", err)
	}
	out := make([]byte, PageSize)
	cipher.NewCBCEncrypter(block, c.essiv(page)).CryptBlocks(out, plaintext)
	return out, nil
}

// DecryptPage reverses EncryptPage.
func (c *PageCipher) DecryptPage(page uint64, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != PageSize {
		return nil, dberrors.New(dberrors.InvalidParameter, "decryptPage: not a whole aligned page")
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.UnsupportedEncryption, dberrors.DomainCore, "aes init failed", err)
	}
	out := make([]byte, PageSize)
	cipher.NewCBCDecrypter(block, c.essiv(page)).CryptBlocks(out, ciphertext)
	return out, nil
}

// encryptValue/decryptValue apply the page cipher to a bucket value of
// arbitrary length by chunking it into PageSize pages (the last zero-padded),
// prefixing the true length so padding can be stripped on decrypt. bbolt
// does not expose raw on-disk pages to callers, so the ESSIV cipher is
// applied at the value-encoding boundary instead of the physical page
// boundary the log-structured original implements it at; each logical
// "page" here is still encrypted/decrypted independently with its own IV
// derived from its page index, preserving the per-page independence
// spec.md §4.2 specifies. See DESIGN.md for the adaptation rationale.
func encryptValue(c *PageCipher, plaintext []byte) []byte {
	out := make([]byte, 8, 8+((len(plaintext)/PageSize)+1)*PageSize)
	binary.BigEndian.PutUint64(out[:8], uint64(len(plaintext)))
	for page := uint64(0); ; page++ {
		start := int(page) * PageSize
		if start >= len(plaintext) {
			break
		}
		end := start + PageSize
		var chunk [PageSize]byte
		if end > len(plaintext) {
			copy(chunk[:], plaintext[start:])
		} else {
			copy(chunk[:], plaintext[start:end])
		}
		enc, err := c.EncryptPage(page, chunk[:])
		if err != nil {
			// Key was validated at PageCipher construction time; a
			// failure here means aes.NewCipher itself is broken.
			panic(err)
		}
		out = append(out, enc...)
	}
	return out
}

func decryptValue(c *PageCipher, ciphertext []byte) []byte {
	if len(ciphertext) < 8 {
		return ciphertext
	}
	trueLen := binary.BigEndian.Uint64(ciphertext[:8])
	body := ciphertext[8:]
	out := make([]byte, 0, trueLen)
	for page := uint64(0); len(out) < int(trueLen); page++ {
		start := int(page) * PageSize
		if start+PageSize > len(body) {
			break
		}
		dec, err := c.DecryptPage(page, body[start:start+PageSize])
		if err != nil {
			panic(err)
		}
		remaining := int(trueLen) - len(out)
		if remaining > PageSize {
			remaining = PageSize
		}
		out = append(out, dec[:remaining]...)
	}
	return out
}
