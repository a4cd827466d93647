package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/KevinKickass/OpenAssetCore/internal/asset"
	"gopkg.in/yaml.v3"
)

// Seed is the YAML fixture layout used to populate a fresh store.
type Seed struct {
	Users   []asset.User   `yaml:"users"`
	Devices []asset.Device `yaml:"devices"`
}

// ParseSeed decodes a fixture and validates every device status.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	for i := range seed.Devices {
		d := &seed.Devices[i]
		if d.Status == "" {
			d.Status = asset.DeviceUnassigned
		}
		if !d.Status.Valid() {
			return nil, fmt.Errorf("device %q: invalid status %q", d.Code, d.Status)
		}
	}
	return &seed, nil
}

// LoadSeed reads path and inserts its users and devices. Records that already
// exist are skipped so the loader can run on every start.
func LoadSeed(ctx context.Context, store Store, path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return nil, err
	}

	// One transaction per record: a duplicate aborts a Postgres transaction.
	for i := range seed.Users {
		u := &seed.Users[i]
		if err := insertSeed(ctx, store, func(tx Tx) error { return tx.CreateUser(ctx, u) }); err != nil {
			return nil, fmt.Errorf("failed to seed user %s: %w", u.Username, err)
		}
	}
	for i := range seed.Devices {
		d := &seed.Devices[i]
		if err := insertSeed(ctx, store, func(tx Tx) error { return tx.CreateDevice(ctx, d) }); err != nil {
			return nil, fmt.Errorf("failed to seed device %s: %w", d.Code, err)
		}
	}
	return seed, nil
}

func insertSeed(ctx context.Context, store Store, fn func(tx Tx) error) error {
	err := store.InTx(ctx, fn)
	if errors.Is(err, ErrDuplicate) {
		return nil
	}
	return err
}
