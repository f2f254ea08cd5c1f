package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/crediflow/scoregate/pkg/cryptox"
	"github.com/crediflow/scoregate/pkg/tokenx"
)

// LoadKeys reads the configured key material into a KeyStore.
//
// The issuer loads the primary as a private PEM; the checker may hold
// public-only PEMs since it never signs. When a master key is
// configured the files on disk are AES-GCM blobs produced by the keygen
// tool, decrypted in memory at load time so the raw PEM never sits on
// disk.
func LoadKeys(cfg Config, logger *slog.Logger) (*tokenx.KeyStore, error) {
	if cfg.PrimaryKeyID == "" || cfg.PrimaryKeyFile == "" {
		return nil, fmt.Errorf("%w: SCOREGATE_PRIMARY_KEY_ID and SCOREGATE_PRIMARY_KEY_FILE are required", tokenx.ErrKeyLoad)
	}

	primaryPEM, err := readKeyFile(cfg, cfg.PrimaryKeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: primary key: %v", tokenx.ErrKeyLoad, err)
	}

	primary := tokenx.KeyMaterial{ID: cfg.PrimaryKeyID, PEM: primaryPEM}

	var secondary *tokenx.KeyMaterial
	if cfg.SecondaryKeyFile != "" {
		if cfg.SecondaryKeyID == "" {
			return nil, fmt.Errorf("%w: SCOREGATE_SECONDARY_KEY_ID is required with a secondary key file", tokenx.ErrKeyLoad)
		}

		secondaryPEM, err := readKeyFile(cfg, cfg.SecondaryKeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: secondary key: %v", tokenx.ErrKeyLoad, err)
		}
		secondary = &tokenx.KeyMaterial{ID: cfg.SecondaryKeyID, PEM: secondaryPEM}
	}

	ks, err := tokenx.NewKeyStore(primary, secondary)
	if err != nil {
		return nil, err
	}

	for _, k := range ks.Keys() {
		logger.Info("key loaded",
			"kid", k.ID,
			"role", string(k.Role),
			"can_sign", k.CanSign(),
		)
	}

	return ks, nil
}

func readKeyFile(cfg Config, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if cfg.MasterKey == "" {
		return data, nil
	}

	master := cryptox.DeriveMasterKey([]byte(cfg.MasterKey))
	return cryptox.DecryptWithMasterKey(master, data)
}
