package crypto

import (
	"testing"

	ac "github.com/Peersyst/xrpl-go/address-codec"
	"github.com/stretchr/testify/assert"
)

var testHexSeedForDerivation = "434670347c6bb7c791e3629fc79c38307315d625fc5b448a601abda6ba54f7efd0cfe70bf769f7e3545c970851f6fe9132ad658101ed1ff9cb2edfeb5dd2d19f"

func TestGetExtendedKeyFromHexSeedWithPath(t *testing.T) {
	tests := []struct {
		name    string
		hexSeed string
		path    string
		wantErr bool
	}{
		{name: "valid seed and path", hexSeed: testHexSeedForDerivation, path: "m/44'/144'/0'/0/0", wantErr: false},
		{name: "empty seed", hexSeed: "", path: "m/44'/144'/0'/0/0", wantErr: true},
		{name: "invalid hex", hexSeed: "not_hex", path: "m/44'/144'/0'/0/0", wantErr: true},
		{name: "invalid path", hexSeed: testHexSeedForDerivation, path: "invalid/path", wantErr: true},
		{name: "empty path", hexSeed: testHexSeedForDerivation, path: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := GetExtendedKeyFromHexSeedWithPath(tt.hexSeed, tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, key)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, key)
		})
	}
}

func TestGetXRPLWallet(t *testing.T) {
	key, err := GetExtendedKeyFromHexSeedWithPath(testHexSeedForDerivation, "m/44'/144'/0'/0/0")
	assert.NoError(t, err)

	address, public, private, err := GetXRPLWallet(key)
	assert.NoError(t, err)
	assert.True(t, ac.IsValidClassicAddress(address))
	assert.NotEmpty(t, public)
	assert.NotEmpty(t, private)
}

func TestParseDerivationPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected []uint32
		wantErr  bool
	}{
		{
			name:     "standard xrpl path",
			path:     "m/44'/144'/0'/0/0",
			expected: []uint32{hardened(44), hardened(144), hardened(0), 0, 0},
		},
		{
			name:    "empty path",
			path:    "",
			wantErr: true,
		},
		{
			name:    "non-numeric component",
			path:    "m/44'/abc'/0'/0/0",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDerivationPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func hardened(i uint32) uint32 {
	return 0x80000000 + i
}
