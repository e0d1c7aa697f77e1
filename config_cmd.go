package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-fs/internal/config"
)

const redacted = "********"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the selected drive's effective settings after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

// configJSON is the JSON output schema for config show.
type configJSON struct {
	ID             string `json:"id"`
	Site           string `json:"site,omitempty"`
	Drive          string `json:"drive,omitempty"`
	DirectoryType  string `json:"directory_type"`
	TenantID       string `json:"tenant_id"`
	ClientID       string `json:"client_id"`
	ClientSecret   string `json:"client_secret"`
	RequestTimeout string `json:"request_timeout"`
	ChunkSize      int64  `json:"chunk_size"`
	WaitForCopy    bool   `json:"wait_for_copy"`
	CopyTimeout    string `json:"copy_timeout"`
	GraphURL       string `json:"graph_url"`
	LoginURL       string `json:"login_url"`
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd)

	_, rd, err := config.Resolve(cc.Env, config.CLIOverrides{ConfigPath: flagConfigPath, Drive: cc.Flags.Drive}, cc.Logger)
	if err != nil {
		return err
	}

	out := configJSON{
		ID:             rd.ID,
		Site:           rd.Site,
		Drive:          rd.Drive,
		DirectoryType:  rd.DirectoryType,
		TenantID:       rd.TenantID,
		ClientID:       rd.ClientID,
		ClientSecret:   redacted,
		RequestTimeout: rd.RequestTimeout.String(),
		ChunkSize:      rd.ChunkSize,
		WaitForCopy:    rd.WaitForCopy,
		CopyTimeout:    rd.CopyTimeout.String(),
		GraphURL:       rd.GraphURL,
		LoginURL:       rd.LoginURL,
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, out)
	}

	renderConfig(cc.Stdout, out)

	return nil
}

func renderConfig(w io.Writer, c configJSON) {
	fmt.Fprintf(w, "drive            %s\n", c.ID)

	if c.Site != "" {
		fmt.Fprintf(w, "site             %s\n", c.Site)
	} else {
		fmt.Fprintf(w, "drive_id         %s\n", c.Drive)
	}

	fmt.Fprintf(w, "directory_type   %s\n", c.DirectoryType)
	fmt.Fprintf(w, "tenant_id        %s\n", c.TenantID)
	fmt.Fprintf(w, "client_id        %s\n", c.ClientID)
	fmt.Fprintf(w, "client_secret    %s\n", c.ClientSecret)
	fmt.Fprintf(w, "request_timeout  %s\n", c.RequestTimeout)
	fmt.Fprintf(w, "chunk_size       %s (%d bytes)\n", formatSize(c.ChunkSize), c.ChunkSize)
	fmt.Fprintf(w, "wait_for_copy    %t\n", c.WaitForCopy)
	fmt.Fprintf(w, "copy_timeout     %s\n", c.CopyTimeout)
	fmt.Fprintf(w, "graph_url        %s\n", c.GraphURL)
	fmt.Fprintf(w, "login_url        %s\n", c.LoginURL)
}
