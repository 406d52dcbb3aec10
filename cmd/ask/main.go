package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// event mirrors the server's pipeline event wire shape loosely; payloads are
// rendered as raw JSON except for token and thinking deltas.
type event struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func main() {
	var (
		serverURL      string
		collectionID   string
		conversationID string
		showThinking   bool
	)

	rootCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against a document collection and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return streamQuestion(cmd, serverURL, collectionID, conversationID, question, showThinking)
		},
	}

	rootCmd.Flags().StringVar(&serverURL, "server", "http://localhost:9020", "answering service base URL")
	rootCmd.Flags().StringVar(&collectionID, "collection", "", "collection UUID to ask against")
	rootCmd.Flags().StringVar(&conversationID, "conversation", "", "conversation UUID to continue (optional)")
	rootCmd.Flags().BoolVar(&showThinking, "thinking", false, "print model reasoning deltas")
	_ = rootCmd.MarkFlagRequired("collection")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func streamQuestion(cmd *cobra.Command, serverURL, collectionID, conversationID, question string, showThinking bool) error {
	reqBody := map[string]string{
		"question":      question,
		"collection_id": collectionID,
	}
	if conversationID != "" {
		reqBody["conversation_id"] = conversationID
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(serverURL, "/") + "/v1/qa/ask/stream"
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, errBody["error"])
	}

	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		raw := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var ev event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		switch ev.Kind {
		case "token":
			var delta string
			if json.Unmarshal(ev.Payload, &delta) == nil {
				fmt.Fprint(out, delta)
			}
		case "thinking":
			if showThinking {
				var delta string
				if json.Unmarshal(ev.Payload, &delta) == nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s", delta)
				}
			}
		case "done":
			fmt.Fprintln(out)
			printDone(out, ev.Payload)
			return nil
		case "error":
			var p struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(ev.Payload, &p)
			return fmt.Errorf("pipeline error: %s", p.Message)
		default:
			fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", ev.Kind, ev.Payload)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return fmt.Errorf("stream ended without a terminal event")
}

func printDone(out io.Writer, raw json.RawMessage) {
	var p struct {
		ConversationID string `json:"conversation_id"`
		Citations      []struct {
			Title string `json:"title"`
			Page  *int   `json:"page"`
		} `json:"citations"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	if len(p.Citations) > 0 {
		fmt.Fprintf(out, "\nSources:\n")
		for i, c := range p.Citations {
			if c.Page != nil {
				fmt.Fprintf(out, "  [%d] %s (page %d)\n", i+1, c.Title, *c.Page)
			} else {
				fmt.Fprintf(out, "  [%d] %s\n", i+1, c.Title)
			}
		}
	}
	fmt.Fprintf(out, "\nConversation: %s\n", p.ConversationID)
}
