package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/brickparty/brick-party/internal/core/domain"
	"github.com/brickparty/brick-party/internal/core/service"
)

const localUser = "local"

// workspace is one set loaded from disk.
type workspace struct {
	opts     *RootOptions
	resolver *service.Resolver
}

func loadWorkspace(opts *RootOptions) (*workspace, error) {
	if opts.Inventory == "" {
		return nil, NewExitError(ExitCommandError, "--inventory is required")
	}

	data, err := os.ReadFile(opts.Inventory)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read inventory", err)
	}
	var rows []domain.InventoryRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to parse inventory", err)
	}
	if len(rows) == 0 {
		return nil, NewExitError(ExitCommandError, "inventory is empty")
	}

	setNumber := opts.SetNumber
	if setNumber == "" {
		setNumber = rows[0].SetNumber
	}

	owned, err := readOwned(opts.Owned)
	if err != nil {
		return nil, err
	}
	store := service.NewOwnedStore()
	store.Load(setNumber, owned)

	index := service.NewInventoryIndex(setNumber, rows)
	return &workspace{
		opts:     opts,
		resolver: service.NewResolver(index, store, nil, localUser, false),
	}, nil
}

func readOwned(path string) (map[string]int, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read owned file", err)
	}
	var owned map[string]int
	if err := json.Unmarshal(data, &owned); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to parse owned file", err)
	}
	return owned, nil
}

// save writes non-zero quantities back, atomically via rename.
func (w *workspace) save() error {
	if w.opts.Owned == "" {
		return nil
	}
	owned := map[string]int{}
	for _, key := range w.resolver.Index().Keys() {
		if n := w.resolver.Owned(key); n > 0 {
			owned[key] = n
		}
	}
	data, err := json.MarshalIndent(owned, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.opts.Owned), ".owned-*.json")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to write owned file", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return WrapExitError(ExitCommandError, "failed to write owned file", err)
	}
	if err := tmp.Close(); err != nil {
		return WrapExitError(ExitCommandError, "failed to write owned file", err)
	}
	if err := os.Rename(tmp.Name(), w.opts.Owned); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replace %s", w.opts.Owned), err)
	}
	return nil
}
