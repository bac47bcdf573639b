package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/kalambet/notelink/internal/config"
)

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search notes by meaning",
	Long: `Search notes by meaning.

Examples:
  notelink search "electric vehicles"
  notelink search --descriptor Why "project motivation"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		descriptor, _ := cmd.Flags().GetString("descriptor")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{"query": args[0]}
		if descriptor != "" {
			body["descriptor"] = descriptor
		}
		if limit > 0 {
			body["limit"] = limit
		}

		resp, err := client.post(cmd.Context(), "/semantic-search", body)
		if err != nil {
			return err
		}

		var result struct {
			Matches []struct {
				Text        string  `json:"text"`
				ContextPath string  `json:"context_path"`
				Descriptor  string  `json:"descriptor"`
				Score       float32 `json:"score"`
			} `json:"matches"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Matches) == 0 {
			printWarning("No matches")
			return nil
		}
		for _, m := range result.Matches {
			label := m.Text
			if m.Descriptor != "" {
				label = "[" + m.Descriptor + "] " + label
			}
			fmt.Printf("  %s %s\n", colorize(colorBold, fmt.Sprintf("%.2f", m.Score)), label)
			if m.ContextPath != "" {
				fmt.Printf("       %s\n", colorize(colorCyan, m.ContextPath))
			}
		}
		return nil
	},
}

// --- extract ---

var extractCmd = &cobra.Command{
	Use:   "extract <text>",
	Short: "Extract key concepts from text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxConcepts, _ := cmd.Flags().GetInt("max")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{"text": args[0]}
		if maxConcepts > 0 {
			body["max_concepts"] = maxConcepts
		}

		resp, err := client.post(cmd.Context(), "/ai/extract-concepts", body)
		if err != nil {
			return err
		}

		var result struct {
			Concepts []struct {
				Name     string `json:"name"`
				Category string `json:"category"`
			} `json:"concepts"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Concepts) == 0 {
			printWarning("No concepts found")
			return nil
		}
		for _, c := range result.Concepts {
			if c.Category != "" {
				fmt.Printf("  %s (%s)\n", colorize(colorBold, c.Name), c.Category)
			} else {
				fmt.Printf("  %s\n", colorize(colorBold, c.Name))
			}
		}
		return nil
	},
}

// --- links ---

var linksCmd = &cobra.Command{
	Use:   "links <query>",
	Short: "Fuzzy-search bullets for manual linking",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/links/search?q="+url.QueryEscape(args[0]))
		if err != nil {
			return err
		}

		var result struct {
			Candidates []struct {
				Text        string  `json:"text"`
				ContextPath string  `json:"context_path"`
				Score       float64 `json:"score"`
				Frecency    int     `json:"frecency"`
			} `json:"candidates"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Candidates) == 0 {
			printWarning("No candidates")
			return nil
		}
		for _, c := range result.Candidates {
			fmt.Printf("  %s %s\n", colorize(colorBold, fmt.Sprintf("%.0f", c.Score)), c.Text)
			if c.ContextPath != "" {
				fmt.Printf("      %s\n", colorize(colorCyan, c.ContextPath))
			}
		}
		return nil
	},
}

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Inspect or trigger background indexing",
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-document sync state",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/sync/status")
		if err != nil {
			return err
		}

		var result struct {
			Documents []struct {
				DocumentID string `json:"document_id"`
				Attempts   int    `json:"attempts"`
				Failed     bool   `json:"failed"`
				LastError  string `json:"last_error"`
				LastSyncAt string `json:"last_sync_at"`
			} `json:"documents"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Documents) == 0 {
			printWarning("No documents tracked yet")
			return nil
		}
		for _, d := range result.Documents {
			state := "ok"
			if d.Failed {
				state = colorize(colorRed, "failed: "+d.LastError)
			}
			fmt.Printf("  %s %s", colorize(colorBold, d.DocumentID), state)
			if d.LastSyncAt != "" {
				fmt.Printf(" (last sync %s)", d.LastSyncAt)
			}
			fmt.Println()
		}
		return nil
	},
}

var syncNowCmd = &cobra.Command{
	Use:   "now <document-id>",
	Short: "Force immediate indexing of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/sync/now", map[string]string{"document_id": args[0]})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Synced %s", args[0])
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	searchCmd.Flags().String("descriptor", "", "restrict matches to a descriptor tag (What, Why, How, Pros, Cons)")
	searchCmd.Flags().Int("limit", 0, "maximum number of results")
	extractCmd.Flags().Int("max", 0, "maximum number of concepts")

	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncNowCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
