package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/docchat/internal/config"
)

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Upload a file to the document library",
	Long: `Upload a file to the document library and queue it for indexing.

Examples:
  docchat upload ./report.pdf
  docchat upload ./notes.md`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"filename": filepath.Base(path),
			"content":  base64.StdEncoding.EncodeToString(data),
		}
		resp, err := client.post(cmd.Context(), "/files", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Uploaded %s (file %s, status %s)", filepath.Base(path), result["id"], result["status"])
		return nil
	},
}

// --- files ---

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage the document library",
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List files in the library",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/files")
		if err != nil {
			return err
		}

		var files []struct {
			ID         string `json:"id"`
			Filename   string `json:"filename"`
			Status     string `json:"status"`
			ChunkCount int    `json:"chunk_count"`
		}
		if err := decodeJSON(resp, &files); err != nil {
			return err
		}

		if len(files) == 0 {
			fmt.Println("Library is empty.")
			return nil
		}

		for _, f := range files {
			fmt.Printf("%s  %-10s  %4d chunks  %s\n",
				colorize(colorCyan, f.ID[:8]),
				f.Status,
				f.ChunkCount,
				f.Filename,
			)
		}
		return nil
	},
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a file and its index entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/files/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted file %s", args[0])
		return nil
	},
}

func init() {
	filesCmd.AddCommand(filesListCmd)
	filesCmd.AddCommand(filesDeleteCmd)
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <conversation-id> <message>",
	Short: "Send a message in a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		conversationID := args[0]
		message := strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/conversations/"+conversationID+"/messages",
			map[string]string{"content": message})
		if err != nil {
			return err
		}

		var result struct {
			Content string `json:"content"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Content)
		return nil
	},
}

// --- conversations ---

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage conversations",
}

var conversationsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a conversation",
	Long: `Create a conversation.

Examples:
  docchat conversations new --mode general
  docchat conversations new --mode single_file --files 7c1e...
  docchat conversations new --mode full_library --continue-from 41af...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		filesStr, _ := cmd.Flags().GetString("files")
		continueFrom, _ := cmd.Flags().GetString("continue-from")
		name, _ := cmd.Flags().GetString("name")

		var fileScope []string
		if filesStr != "" {
			fileScope = strings.Split(filesStr, ",")
			for i := range fileScope {
				fileScope[i] = strings.TrimSpace(fileScope[i])
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"mode": mode}
		if name != "" {
			req["name"] = name
		}
		if fileScope != nil {
			req["file_scope"] = fileScope
		}
		if continueFrom != "" {
			req["previous_conversation_id"] = continueFrom
		}

		resp, err := client.post(cmd.Context(), "/conversations", req)
		if err != nil {
			return err
		}

		var conv struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		if err := decodeJSON(resp, &conv); err != nil {
			return err
		}

		printSuccess("Created conversation %s (%s)", conv.ID, conv.Name)
		return nil
	},
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/conversations")
		if err != nil {
			return err
		}

		var conversations []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Mode string `json:"mode"`
		}
		if err := decodeJSON(resp, &conversations); err != nil {
			return err
		}

		if len(conversations) == 0 {
			fmt.Println("No conversations found.")
			return nil
		}

		for _, c := range conversations {
			fmt.Printf("%s  %-12s  %s\n", colorize(colorCyan, c.ID[:8]), c.Mode, c.Name)
		}
		return nil
	},
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a conversation with its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/conversations/"+args[0])
		if err != nil {
			return err
		}

		var result any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

var conversationsRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		name := strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/conversations/"+id, map[string]string{"name": name})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Renamed conversation %s to %q", id, name)
		return nil
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation and its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/conversations/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted conversation %s", args[0])
		return nil
	},
}

var conversationsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a conversation as markdown or HTML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/conversations/"+args[0]+"/export?format="+format)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
		}

		if output == "" {
			_, err := io.Copy(os.Stdout, resp.Body)
			return err
		}

		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		if _, err := io.Copy(f, resp.Body); err != nil {
			return err
		}

		printSuccess("Exported conversation to %s", output)
		return nil
	},
}

func init() {
	conversationsNewCmd.Flags().String("mode", "general", "conversation mode: general, single_file, multi_file, full_library")
	conversationsNewCmd.Flags().String("files", "", "comma-separated file ids for single_file/multi_file modes")
	conversationsNewCmd.Flags().String("continue-from", "", "id of a conversation to continue from")
	conversationsNewCmd.Flags().String("name", "", "conversation name (derived from the first message if empty)")
	conversationsExportCmd.Flags().String("format", "markdown", "export format: markdown or html")
	conversationsExportCmd.Flags().String("output", "", "output file path (default: stdout)")

	conversationsCmd.AddCommand(conversationsNewCmd)
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsRenameCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
	conversationsCmd.AddCommand(conversationsExportCmd)
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
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
