package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BioHazard786/Warpmeet/internal/server"
)

// apiClient talks to the signaling server's HTTP endpoints.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{base: base, http: &http.Client{Timeout: 10 * time.Second}}
}

// roomStatus reports whether roomID is open. A missing room is not an error.
func (c *apiClient) roomStatus(ctx context.Context, roomID string) (*server.RoomStatus, error) {
	var status server.RoomStatus
	code, err := c.do(ctx, http.MethodGet, "/rooms/"+roomID, &status)
	if err != nil {
		return nil, err
	}
	switch code {
	case http.StatusOK, http.StatusNotFound:
		status.RoomID = roomID
		return &status, nil
	default:
		return nil, fmt.Errorf("check room: unexpected status %d", code)
	}
}

// newRoom asks the server for a fresh room code.
func (c *apiClient) newRoom(ctx context.Context) (string, error) {
	var room server.NewRoom
	code, err := c.do(ctx, http.MethodPost, "/rooms", &room)
	if err != nil {
		return "", err
	}
	if code != http.StatusCreated || room.RoomID == "" {
		return "", fmt.Errorf("create room: unexpected status %d", code)
	}
	return room.RoomID, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
