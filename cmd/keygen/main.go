// Command keygen generates Ed25519 key material for the token broker.
//
// It writes a PKCS8 private key PEM and the matching PKIX public key
// PEM, so the issuer gets the private half and checker deployments get
// the public half only. With -master-key the private PEM is written as
// an AES-256-GCM blob instead, matching what SCOREGATE_MASTER_KEY
// expects at load time.
package main

import (
	"crypto/ed25519"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/crediflow/scoregate/pkg/cryptox"
)

func main() {
	var (
		outDir    = flag.String("out", ".", "directory to write the key files into")
		name      = flag.String("name", "scoregate", "base name for the key files")
		masterKey = flag.String("master-key", "", "optional passphrase; encrypts the private key at rest")
	)
	flag.Parse()

	privPEM, err := cryptox.GenerateEd25519Key()
	if err != nil {
		log.Fatalf("generate key: %v", err)
	}

	priv, err := cryptox.ParseEd25519Private(privPEM)
	if err != nil {
		log.Fatalf("parse generated key: %v", err)
	}

	pubPEM, err := cryptox.MarshalEd25519Public(priv.Public().(ed25519.PublicKey))
	if err != nil {
		log.Fatalf("marshal public key: %v", err)
	}

	privOut := privPEM
	privPath := filepath.Join(*outDir, *name+".key")
	if *masterKey != "" {
		master := cryptox.DeriveMasterKey([]byte(*masterKey))
		if privOut, err = cryptox.EncryptWithMasterKey(master, privPEM); err != nil {
			log.Fatalf("encrypt private key: %v", err)
		}
		privPath += ".enc"
	}

	if err := os.WriteFile(privPath, privOut, 0o600); err != nil {
		log.Fatalf("write private key: %v", err)
	}

	pubPath := filepath.Join(*outDir, *name+".pub")
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		log.Fatalf("write public key: %v", err)
	}

	fmt.Printf("wrote %s and %s\n", privPath, pubPath)
}
