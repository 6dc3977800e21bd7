package app

import (
	"context"
	"encoding/json"
	"os"
)

// Fetch performs a single snapshot fetch and prints it as JSON.
func (a *App) Fetch(ctx context.Context) error {
	client, err := a.newChainClient()
	if err != nil {
		return err
	}

	snap, err := client.FetchSnapshot(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(snap)
}
