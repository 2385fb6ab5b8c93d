package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// KeyPair is the signing key and the public key tokens are checked against.
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// LoadKeyPair reads a PEM private key and, optionally, a PEM certificate or
// public key. An empty publicPath uses the private key's public half.
func LoadKeyPair(privatePath, publicPath string) (KeyPair, error) {
	privPEM, err := os.ReadFile(privatePath)
	if err != nil {
		return KeyPair{}, fmt.Errorf("read private key: %w", err)
	}
	var pubPEM []byte
	if publicPath != "" {
		if pubPEM, err = os.ReadFile(publicPath); err != nil {
			return KeyPair{}, fmt.Errorf("read certificate: %w", err)
		}
	}
	return ParseKeyPair(privPEM, pubPEM)
}

func ParseKeyPair(privatePEM, publicPEM []byte) (KeyPair, error) {
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
	if err != nil {
		return KeyPair{}, fmt.Errorf("parse private key: %w", err)
	}
	if len(publicPEM) == 0 {
		return KeyPair{Private: priv, Public: &priv.PublicKey}, nil
	}

	pub, err := parsePublic(publicPEM)
	if err != nil {
		return KeyPair{}, err
	}
	if !priv.PublicKey.Equal(pub) {
		return KeyPair{}, errors.New("certificate does not match private key")
	}
	return KeyPair{Private: priv, Public: pub}, nil
}

func parsePublic(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("certificate is not PEM encoded")
	}
	if block.Type != "CERTIFICATE" {
		pub, err := jwt.ParseRSAPublicKeyFromPEM(data)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		return pub, nil
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate key is %T, want RSA", cert.PublicKey)
	}
	return pub, nil
}

// GenerateKeyPair makes a throwaway key pair, for development runs without
// configured key material.
func GenerateKeyPair(bits int) (KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Private: priv, Public: &priv.PublicKey}, nil
}

// EncodePrivateKey returns priv as a PKCS#1 PEM block.
func EncodePrivateKey(priv *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
}
