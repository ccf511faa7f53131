package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"
)

// Exit codes for the chat command.
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitDenied      = 2
	ExitUnavailable = 3
)

var (
	chatMessage    string
	chatGatewayURL string
	chatAPIKey     string
	chatContext    string
	chatTimeout    int
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Send a one-shot chat message to the gateway",
	Long: `Send a message to a running gateway and print the assistant's reply.

Examples:
  chatops-bot chat -m "what sites can I restart billing-svc in?"
  chatops-bot chat -m "any open incidents on the payments platform?" --context IRA

Exit codes:
  0  success
  1  request failure
  2  not entitled or not authenticated
  3  gateway unavailable`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "message to send (required)")
	chatCmd.Flags().StringVar(&chatGatewayURL, "gateway-url", "http://localhost:8080", "gateway HTTP API URL")
	chatCmd.Flags().StringVar(&chatAPIKey, "api-key", "", "API key for gateway authentication (or CHATOPS_API_KEY env)")
	chatCmd.Flags().StringVar(&chatContext, "context", "", "switch to this assistant context first (CF, IRA, or Direct)")
	chatCmd.Flags().IntVar(&chatTimeout, "timeout", 300, "timeout in seconds")

	_ = chatCmd.MarkFlagRequired("message")
}

func runChat(_ *cobra.Command, _ []string) error {
	apiKey := goutils.Env("CHATOPS_API_KEY", chatAPIKey)
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required (use --api-key or set CHATOPS_API_KEY)")
		os.Exit(ExitDenied)
	}
	gatewayURL := goutils.Env("CHATOPS_GATEWAY_URL", chatGatewayURL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(chatTimeout)*time.Second)
	defer cancel()

	client := &http.Client{}

	if chatContext != "" {
		var ack map[string]any
		if err := postJSON(ctx, client, gatewayURL+"/v1/context", apiKey,
			map[string]string{"context": chatContext}, &ack); err != nil {
			return err
		}
	}

	var resp struct {
		Reply         string `json:"reply"`
		AwaitingInput bool   `json:"awaiting_input"`
		CorrelationID string `json:"correlation_id"`
	}
	if err := postJSON(ctx, client, gatewayURL+"/v1/chat", apiKey,
		map[string]string{"message": chatMessage}, &resp); err != nil {
		return err
	}

	fmt.Println(resp.Reply)
	if resp.AwaitingInput {
		fmt.Fprintln(os.Stderr, "(the assistant is waiting for more input; send a follow-up message)")
	}
	return nil
}

// postJSON sends an authenticated POST and decodes the JSON response,
// translating HTTP failures into the chat exit codes.
func postJSON(ctx context.Context, client *http.Client, url, apiKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: gateway unreachable: %v\n", err)
		os.Exit(ExitUnavailable)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		fmt.Fprintf(os.Stderr, "Error: %s\n", errorMessage(data))
		os.Exit(ExitDenied)
	case resp.StatusCode >= 500:
		fmt.Fprintf(os.Stderr, "Error: gateway error: %s\n", errorMessage(data))
		os.Exit(ExitUnavailable)
	case resp.StatusCode != http.StatusOK:
		fmt.Fprintf(os.Stderr, "Error: %s\n", errorMessage(data))
		os.Exit(ExitFailure)
	}

	return json.Unmarshal(data, out)
}

func errorMessage(data []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return string(data)
}
