// Command keygen generates the RSA keypair used to sign and verify the
// bearer tokens gating /mcp. The public key goes next to the server binary
// (PUBLIC_KEY_PATH); the private key stays with whoever mints tokens.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"os"
)

func main() {
	dir := flag.String("out", ".", "directory to write private_key.pem and public_key.pem into")
	bits := flag.Int("bits", 2048, "RSA key size")
	flag.Parse()

	if err := run(*dir, *bits); err != nil {
		fmt.Fprintln(os.Stderr, "keygen:", err)
		os.Exit(1)
	}
}

func run(dir string, bits int) error {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	privPath := dir + "/private_key.pem"
	pubPath := dir + "/public_key.pem"

	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", privPath, err)
	}
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil { // #nosec G306 -- public key is public
		return fmt.Errorf("write %s: %w", pubPath, err)
	}

	fmt.Println("wrote", privPath)
	fmt.Println("wrote", pubPath)
	return nil
}
