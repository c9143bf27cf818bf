package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

// analyzeTimeout bounds one analysis run end to end, stream included.
const analyzeTimeout = 5 * time.Minute

type analyzeOptions struct {
	sessionID  string
	ipcFilters []string
	jsonOut    bool
}

func newAnalyzeCommand(root *RootOptions) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze <idea>",
		Short: "Run a prior-art analysis for an invention idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, root, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.sessionID, "session", "", "session id (default: random)")
	cmd.Flags().StringSliceVar(&opts.ipcFilters, "ipc", nil, "IPC prefix filters (e.g. G02B)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print the final report as JSON")
	return cmd
}

func runAnalyze(cmd *cobra.Command, root *RootOptions, opts *analyzeOptions, idea string) error {
	sessionID := opts.sessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	body, err := json.Marshal(map[string]any{
		"idea":        idea,
		"ipc_filters": opts.ipcFilters,
	})
	if err != nil {
		return err
	}

	url := strings.TrimRight(root.ServerAddr, "/") + "/api/v1/analyses"
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-ID", sessionID)
	req.Header.Set("Accept", "text/event-stream")

	client := &http.Client{Timeout: analyzeTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUpstreamConnect, "analysis request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	return consumeStream(cmd.OutOrStdout(), resp.Body, opts.jsonOut)
}

func decodeAPIError(resp *http.Response) error {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Message == "" {
		return apperrors.Newf(apperrors.ErrCodeExternalService, "server answered %d", resp.StatusCode)
	}
	return apperrors.Newf(apperrors.ErrCodeExternalService, "%s (%s)", body.Message, body.Code)
}

// consumeStream renders the SSE events: progress lines to the terminal,
// analysis tokens as they arrive, and the final report once complete.
func consumeStream(out io.Writer, r io.Reader, jsonOut bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event string
	streaming := false
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			done, err := renderEvent(out, event, data, jsonOut, &streaming)
			if done || err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeExternalService, "stream interrupted")
	}
	return nil
}

func renderEvent(out io.Writer, event, data string, jsonOut bool, streaming *bool) (done bool, err error) {
	switch event {
	case "progress":
		var p struct {
			Percent int    `json:"percent"`
			Message string `json:"message"`
		}
		if json.Unmarshal([]byte(data), &p) == nil {
			fmt.Fprintf(out, "[%3d%%] %s\n", p.Percent, p.Message)
		}
	case "stream_token":
		var tok struct {
			Text string `json:"text"`
		}
		if json.Unmarshal([]byte(data), &tok) == nil {
			fmt.Fprint(out, tok.Text)
			*streaming = true
		}
	case "complete":
		if *streaming {
			fmt.Fprintln(out)
		}
		var c struct {
			Result patent.AnalysisReport `json:"result"`
		}
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return true, apperrors.Wrap(err, apperrors.ErrCodeSerialization, "malformed final report")
		}
		printReport(out, c.Result, jsonOut)
		return true, nil
	case "empty":
		fmt.Fprintln(out, "유사한 선행 특허가 발견되지 않았습니다.")
		return true, nil
	case "error":
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal([]byte(data), &e)
		return true, apperrors.Newf(apperrors.ErrCodeExternalService, "%s (%s)", e.Message, e.Code)
	}
	return false, nil
}

func printReport(out io.Writer, report patent.AnalysisReport, jsonOut bool) {
	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}

	fmt.Fprintf(out, "\n위험 등급: %s (%d/100)\n", report.RiskLevel, report.RiskScore)
	fmt.Fprintf(out, "유사 특허: %d건\n", report.SimilarCount)
	if report.Uniqueness != "" {
		fmt.Fprintf(out, "\n차별성: %s\n", report.Uniqueness)
	}
	for _, tp := range report.TopPatents {
		fmt.Fprintf(out, "  - %s (%.0f%%) %s\n    %s\n",
			tp.ID, tp.Similarity*100, tp.Title, patent.GooglePatentsURL(tp.ID))
	}
}
