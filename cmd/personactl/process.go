package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/personad/internal/analysis"
	"github.com/fyrsmithlabs/personad/internal/persona"
	"github.com/fyrsmithlabs/personad/internal/processor"
)

var (
	// process command flags
	procSessionID  string
	procUserID     string
	procTrace      bool
	procOutputJSON bool
)

func init() {
	processCmd.Flags().StringVar(&procSessionID, "session", "", "Session identifier (required)")
	processCmd.Flags().StringVar(&procUserID, "user", "", "User identifier for persona persistence (optional)")
	processCmd.Flags().BoolVar(&procTrace, "trace", false, "Include the per-stage execution trace")
	processCmd.Flags().BoolVar(&procOutputJSON, "json", false, "Output the raw response as JSON")
	_ = processCmd.MarkFlagRequired("session")
}

// processCmd submits a message from a file or stdin
var processCmd = &cobra.Command{
	Use:   "process [file]",
	Short: "Run a message through the persona pipeline",
	Long: `Submit a message to the personad daemon and print the synthesized persona view.

Examples:
  # Process a file
  personactl process --session support-chat message.txt

  # Process from stdin
  echo "Can you help me debug this?" | personactl process --session support-chat -

  # Attribute the run to a user so traits persist across sessions
  personactl process --session support-chat --user alice message.txt

  # Include the stage trace
  personactl process --session support-chat --trace message.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProcess,
}

// runProcess handles the process command
func runProcess(cmd *cobra.Command, args []string) error {
	text, err := readInput(args)
	if err != nil {
		return err
	}

	reqBody := struct {
		Text      string `json:"text"`
		SessionID string `json:"session_id"`
		UserID    string `json:"user_id,omitempty"`
	}{
		Text:      text,
		SessionID: procSessionID,
		UserID:    procUserID,
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/messages", serverURL)
	if procTrace {
		url += "?trace=1"
	}
	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var runResp processor.Response
	if err := json.NewDecoder(resp.Body).Decode(&runResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if procOutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runResp)
	}

	fmt.Print(renderResponse(&runResp))
	return nil
}

// readInput reads the message text from the named file, or stdin for "-"
// or no argument.
func readInput(args []string) (string, error) {
	var content []byte
	var err error

	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
	}

	if len(content) == 0 {
		return "", fmt.Errorf("no message to process")
	}
	return string(content), nil
}

// renderResponse formats a run response for terminal output.
func renderResponse(resp *processor.Response) string {
	var b strings.Builder

	status := "ok"
	if !resp.Success {
		status = "failed"
	}
	fmt.Fprintf(&b, "Run:        %s (%s, %dms)\n", resp.RunID, status, resp.DurationMS)
	fmt.Fprintf(&b, "Session:    %s\n", resp.SessionID)
	fmt.Fprintf(&b, "Operations: %s\n", strings.Join(resp.Operations, ", "))

	for _, stageErr := range resp.Errors {
		fmt.Fprintf(&b, "Error:      [%s] %s (recoverable: %v)\n",
			stageErr.Stage, stageErr.Message, stageErr.Recoverable)
	}

	if resp.Persona != nil {
		view := resp.Persona
		fmt.Fprintf(&b, "\nPersona (confidence %.2f)\n", view.Confidence)

		w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		for _, axis := range persona.Axes() {
			if trait, ok := view.CoreTraits[axis]; ok {
				fmt.Fprintf(w, "  %s\t%s\n", axis, trait)
			}
		}
		w.Flush()

		fmt.Fprintf(&b, "\nStrategy\n")
		w = tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "  tone\t%s\n", view.Strategy.Tone)
		fmt.Fprintf(w, "  technicality\t%s\n", view.Strategy.Technicality)
		fmt.Fprintf(w, "  formality\t%s\n", view.Strategy.Formality)
		fmt.Fprintf(w, "  enthusiasm\t%s\n", view.Strategy.Enthusiasm)
		fmt.Fprintf(w, "  supportiveness\t%s\n", view.Strategy.Supportiveness)
		w.Flush()

		fmt.Fprintf(&b, "\nAdaptation: %.2f", view.Adaptation.Level)
		if len(view.Adaptation.Triggers) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(view.Adaptation.Triggers, ", "))
		}
		fmt.Fprintf(&b, "\nFocus:      %s, %s\n",
			view.Insights.PrimaryFocus, view.Insights.EmotionalLandscape)
	}

	if len(resp.Analyses) > 0 {
		fmt.Fprintf(&b, "\nAnalyses\n")
		w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		for _, kind := range analysis.Kinds() {
			res, ok := resp.Analyses.Get(kind)
			if !ok {
				continue
			}
			note := ""
			if res.Fallback {
				note = "  (fallback)"
			}
			fmt.Fprintf(w, "  %s\t%.2f\t%s%s\n", kind, res.Confidence, res.Summary, note)
		}
		w.Flush()
	}

	if len(resp.Trace) > 0 {
		fmt.Fprintf(&b, "\nTrace\n")
		w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		for _, entry := range resp.Trace {
			outcome := "ok"
			if !entry.Success {
				outcome = "failed: " + entry.Error
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\n",
				entry.Stage, entry.End.Sub(entry.Start).Round(time.Microsecond), outcome)
		}
		w.Flush()
	}

	return b.String()
}
