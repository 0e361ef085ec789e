package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"hitch/internal/api"
	"hitch/internal/config"
)

// AddAccount creates a platform account through the running server's ops
// API, so credentials land in the same store the server reads.
func AddAccount(username, role, password string, cfg *config.Config) error {
	reqBody, err := json.Marshal(api.AddAccountRequest{
		Username: username,
		Role:     role,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s/admin/accounts", cfg.OpsAddr)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to call ops API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to add account (Status: %d): %s", resp.StatusCode, string(body))
	}

	var result api.AddAccountResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("\nAccount Created Successfully!\n")
	fmt.Printf("Username:  %s\n", result.Username)
	fmt.Printf("User ID:   %s\n", result.UserID)
	return nil
}
