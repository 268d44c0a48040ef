package utils

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/spf13/pflag"
)

var (
	ErrShortStringTooLong  = errors.New("short string longer than 31 characters")
	ErrShortStringNonASCII = errors.New("short string contains non-ascii characters")
)

// ChainID identifies the chain. It is either given as a hex felt or as a cairo short string.
type ChainID struct {
	id felt.Felt
}

// The following are necessary for Cobra and Viper, respectively, to unmarshal the chain id
// CLI/config parameters properly.
var (
	_ pflag.Value              = (*ChainID)(nil)
	_ encoding.TextUnmarshaler = (*ChainID)(nil)
)

// DefaultChainID is "KATANA".
var DefaultChainID = MustChainID("KATANA")

func MustChainID(s string) ChainID {
	var c ChainID
	if err := c.Set(s); err != nil {
		panic(err)
	}
	return c
}

func ChainIDFromFelt(f *felt.Felt) ChainID {
	return ChainID{id: *f}
}

func (c ChainID) Felt() *felt.Felt {
	id := c.id
	return &id
}

func (c ChainID) Equal(other ChainID) bool {
	return c.id.Equal(&other.id)
}

// String returns the decoded short string when the id is printable ascii, the hex form otherwise.
func (c ChainID) String() string {
	if s, ok := DecodeShortString(&c.id); ok && s != "" {
		return s
	}
	return c.id.String()
}

func (c *ChainID) Set(s string) error {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		id, err := new(felt.Felt).SetString(s)
		if err != nil {
			return fmt.Errorf("invalid chain id %q: %w", s, err)
		}
		c.id = *id
		return nil
	}
	id, err := EncodeShortString(s)
	if err != nil {
		return err
	}
	c.id = *id
	return nil
}

func (c *ChainID) Type() string {
	return "ChainID"
}

func (c *ChainID) UnmarshalText(text []byte) error {
	return c.Set(string(text))
}

func (c ChainID) MarshalYAML() (any, error) {
	return c.String(), nil
}

func (c *ChainID) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// EncodeShortString packs an ascii string of at most 31 characters into a felt.
func EncodeShortString(s string) (*felt.Felt, error) {
	if len(s) > 31 {
		return nil, ErrShortStringTooLong
	}
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return nil, ErrShortStringNonASCII
		}
	}
	return new(felt.Felt).SetBytes([]byte(s)), nil
}

// DecodeShortString reverses EncodeShortString. ok is false if the felt is not printable ascii.
func DecodeShortString(f *felt.Felt) (string, bool) {
	b := f.Bytes()
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	for _, ch := range b[i:] {
		if ch < 0x20 || ch > 0x7e {
			return "", false
		}
	}
	return string(b[i:]), true
}
