package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/manpreetbhatti/readtrail/internal/api"
)

const statusTimeout = 5 * time.Second

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show live rooms and saved history of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(baseURL)
			if target == "" {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				target = baseURLFromAddr(cfg.Server.Addr)
			}

			reqCtx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
			defer cancel()

			client := &http.Client{}
			var stats api.StatsResponse
			if err := getJSON(reqCtx, client, target+"/api/stats", &stats); err != nil {
				return err
			}
			var rooms api.RoomsResponse
			if err := getJSON(reqCtx, client, target+"/api/rooms", &rooms); err != nil {
				return err
			}

			renderStatus(cmd.OutOrStdout(), target, stats, rooms)
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "", "Server base URL (defaults to the configured address)")
	return cmd
}

// baseURLFromAddr turns a listen address such as ":8080" into a dialable URL.
func baseURLFromAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("query server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("query %s: %s: %s", url, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func renderStatus(w io.Writer, target string, stats api.StatsResponse, rooms api.RoomsResponse) {
	fmt.Fprintf(w, "Server: %s\n\n", target)

	fmt.Fprintln(w, renderTable(
		[]string{"Metric", "Value"},
		[][]string{
			{"Active rooms", strconv.Itoa(stats.ActiveRooms)},
			{"Participants", strconv.Itoa(stats.ActiveParticipants)},
			{"Connections", strconv.Itoa(stats.Connections)},
			{"Saved rooms", strconv.Itoa(stats.HistoryRooms)},
			{"Saved paths", strconv.Itoa(stats.HistoryRecords)},
		},
		[]columnAlignment{alignLeft, alignRight},
	))

	if len(rooms.Rooms) == 0 {
		fmt.Fprintln(w, "\nNo active rooms")
		return
	}

	rows := make([][]string, 0, len(rooms.Rooms))
	for _, r := range rooms.Rooms {
		rows = append(rows, []string{r.ID, strconv.Itoa(r.Participants)})
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderTable([]string{"Room", "Readers"}, rows, []columnAlignment{alignLeft, alignRight}))
}
