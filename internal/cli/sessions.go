package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/flowchat/pkg/ports"
)

// ListSessions prints the stored conversation ids.
func ListSessions(ctx context.Context, store ports.StateStore, w io.Writer) error {
	ids, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("error listing conversations: %w", err)
	}
	if len(ids) == 0 {
		fmt.Fprintln(w, "No stored conversations found.")
		return nil
	}
	fmt.Fprintln(w, "Stored Conversations:")
	for _, id := range ids {
		fmt.Fprintln(w, "- "+id)
	}
	return nil
}

// InspectSession prints the state of a conversation as indented JSON.
func InspectSession(ctx context.Context, store ports.StateStore, id string, w io.Writer) error {
	state, err := store.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("error loading conversation '%s': %w", id, err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling state: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// RemoveSessions deletes every id, reporting each result, and returns the
// joined failures.
func RemoveSessions(ctx context.Context, store ports.StateStore, ids []string, w io.Writer) error {
	var errs []error
	for _, id := range ids {
		if err := store.Delete(ctx, id); err != nil {
			fmt.Fprintf(w, "Error removing '%s': %v\n", id, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(w, "Removed conversation '%s'\n", id)
	}
	return errors.Join(errs...)
}
