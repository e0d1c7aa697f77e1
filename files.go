package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/onedrive-fs/internal/config"
	"github.com/tonimelisma/onedrive-fs/internal/driveops"
	"github.com/tonimelisma/onedrive-fs/internal/remotefs"
)

// errPathMissing is returned by exists for a path that is neither a file
// nor a folder. main exits 1 without printing it.
var errPathMissing = errors.New("path does not exist")

// copyWaiter is implemented by filesystems that can block until a
// server-side copy finishes.
type copyWaiter interface {
	CopyAndWait(ctx context.Context, source, destination string) error
}

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List files and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}

	cmd.Flags().BoolP("recursive", "r", false, "list the whole subtree")

	return cmd
}

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Write a file's content to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  runCat,
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <remote-path> [local-path]",
		Short: "Download a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path> [remote-path]",
		Short: "Upload a file",
		Long: `Upload a local file. Files up to 4 MiB are sent in one request; larger
files go through an upload session in chunks of --chunk-size, which must be
a multiple of 320 KiB.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runPut,
	}

	cmd.Flags().String("chunk-size", "", "upload session chunk size, e.g. 10MiB (default from config)")
	cmd.Flags().String("content-type", "", "Content-Type for single-request uploads")

	return cmd
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or folder",
		Long: `Delete a file or folder. Folder deletion removes all contents in one
server-side operation; pass --recursive (-r) to confirm it.`,
		Args: cobra.ExactArgs(1),
		RunE: runRm,
	}

	cmd.Flags().BoolP("recursive", "r", false, "confirm recursive folder deletion")

	return cmd
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder (recursive)",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <source> <destination>",
		Short: "Move or rename a file or folder",
		Args:  cobra.ExactArgs(2),
		RunE:  runMv,
	}
}

func newCpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cp <source> <destination>",
		Short: "Copy a file or folder server-side",
		Long: `Start a server-side copy. Copies run asynchronously: without --wait the
command returns once the job is accepted. With --wait the job is polled until
it finishes or the drive's copy_timeout (default 30m) runs out.`,
		Args: cobra.ExactArgs(2),
		RunE: runCp,
	}

	cmd.Flags().Bool("wait", false, "wait for the copy job to finish, up to copy_timeout")

	return cmd
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Display file or folder metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}
}

func newExistsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <path>",
		Short: "Report whether a path is a file, a folder, or missing (exit 1)",
		Args:  cobra.ExactArgs(1),
		RunE:  runExists,
	}
}

func newDrivesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drives",
		Short: "List configured drives",
		Args:  cobra.NoArgs,
		RunE:  runDrives,
	}
}

// openDrive returns the CLIContext and the selected drive's filesystem.
func openDrive(cmd *cobra.Command) (*CLIContext, remotefs.Filesystem, error) {
	cc := mustCLIContext(cmd)

	fs, err := cc.filesystem(cmd.Context())
	if err != nil {
		return nil, nil, err
	}

	return cc, fs, nil
}

func runLs(cmd *cobra.Command, args []string) error {
	remotePath := ""
	if len(args) > 0 {
		remotePath = args[0]
	}

	recursive, _ := cmd.Flags().GetBool("recursive")

	cc, fs, err := openDrive(cmd)
	if err != nil {
		return err
	}

	cc.Logger.Debug("ls", "path", remotePath, "recursive", recursive)

	entries, err := fs.ListContents(cmd.Context(), remotePath, recursive)
	if err != nil {
		return err
	}

	sortEntries(entries)

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, entries)
	}

	printEntriesTable(cc.Stdout, entries)

	return nil
}

// sortEntries orders a listing by path, folders before files at the same
// path.
func sortEntries(entries []remotefs.StorageEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Path != entries[j].Path {
			return entries[i].Path < entries[j].Path
		}

		return !entries[i].IsFile() && entries[j].IsFile()
	})
}

func printEntriesTable(w io.Writer, entries []remotefs.StorageEntry) {
	headers := []string{"PATH", "SIZE", "MODIFIED"}
	rows := make([][]string, 0, len(entries))

	for i := range entries {
		name := entries[i].Path
		size := formatSize(entries[i].Size)

		if !entries[i].IsFile() {
			name += "/"
			size = "-"
		}

		rows = append(rows, []string{name, size, formatTime(entries[i].LastModified)})
	}

	printTable(w, headers, rows)
}

func runCat(cmd *cobra.Command, args []string) error {
	cc, fs, err := openDrive(cmd)
	if err != nil {
		return err
	}

	rc, err := fs.ReadStream(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer rc.Close()

	if _, err := io.Copy(cc.Stdout, rc); err != nil {
		return fmt.Errorf("reading %q: %w", args[0], err)
	}

	return nil
}

// getJSONResult is the JSON output schema for get.
type getJSONResult struct {
	Remote       string `json:"remote"`
	Local        string `json:"local"`
	Size         int64  `json:"size"`
	QuickXorHash string `json:"quickxorhash,omitempty"`
	HashVerified bool   `json:"hash_verified"`
}

func runGet(cmd *cobra.Command, args []string) error {
	remotePath := args[0]

	localPath := localName(remotePath)
	if len(args) > 1 {
		localPath = args[1]
	}

	if localPath == "." || localPath == "" {
		return errors.New("cannot derive a local file name, pass one explicitly")
	}

	cc, fs, err := openDrive(cmd)
	if err != nil {
		return err
	}

	tm := driveops.NewTransferManager(fs, cc.Logger)

	res, err := tm.Download(cmd.Context(), remotePath, localPath, driveops.DownloadOpts{})
	if err != nil {
		return err
	}

	if res.RemoteHash != "" && !res.HashVerified {
		cc.Statusf("Warning: %s does not match the remote hash\n", localPath)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, getJSONResult{
			Remote:       remotePath,
			Local:        localPath,
			Size:         res.Size,
			QuickXorHash: res.LocalHash,
			HashVerified: res.HashVerified,
		})
	}

	cc.Statusf("Downloaded %s (%s)\n", localPath, formatSize(res.Size))

	return nil
}

// localName derives the default local file name for a download. Remote
// names keep their exact bytes; the local copy gets the NFC form.
func localName(remotePath string) string {
	return norm.NFC.String(path.Base(strings.Trim(remotePath, "/")))
}

// putJSONResult is the JSON output schema for put.
type putJSONResult struct {
	Local        string         `json:"local"`
	Item         *remotefs.Item `json:"item"`
	HashVerified bool           `json:"hash_verified"`
}

func runPut(cmd *cobra.Command, args []string) error {
	localPath := args[0]

	remotePath := filepath.Base(localPath)
	if len(args) > 1 {
		remotePath = args[1]
	}

	opts, err := putOptions(cmd)
	if err != nil {
		return err
	}

	cc, fs, err := openDrive(cmd)
	if err != nil {
		return err
	}

	tm := driveops.NewTransferManager(fs, cc.Logger)

	res, err := tm.Upload(cmd.Context(), localPath, remotePath, opts)
	if err != nil {
		return err
	}

	if res.Item.QuickXorHash != "" && !res.HashVerified {
		cc.Statusf("Warning: remote hash of %s does not match the local file\n", remotePath)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, putJSONResult{Local: localPath, Item: res.Item, HashVerified: res.HashVerified})
	}

	cc.Statusf("Uploaded %s (%s)\n", remotePath, formatSize(res.Size))

	return nil
}

// putOptions reads --chunk-size and --content-type.
func putOptions(cmd *cobra.Command) (driveops.UploadOpts, error) {
	var opts driveops.UploadOpts

	opts.ContentType, _ = cmd.Flags().GetString("content-type")

	raw, _ := cmd.Flags().GetString("chunk-size")
	if raw == "" {
		return opts, nil
	}

	size, err := config.ParseSize(raw)
	if err != nil {
		return opts, fmt.Errorf("--chunk-size: %w", err)
	}

	if err := remotefs.ValidateChunkSize(size); err != nil {
		return opts, fmt.Errorf("--chunk-size: %w", err)
	}

	opts.ChunkSize = size

	return opts, nil
}

func runRm(cmd *cobra.Command, args []string) error {
	remotePath := args[0]
	recursive, _ := cmd.Flags().GetBool("recursive")

	cc, fs, err := openDrive(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	if fs.DirectoryExists(ctx, remotePath) {
		if !recursive {
			return fmt.Errorf("%q is a folder, use --recursive to delete it with its contents", remotePath)
		}

		err = fs.DeleteDirectory(ctx, remotePath)
	} else {
		err = fs.Delete(ctx, remotePath)
	}

	if err != nil {
		return err
	}

	cc.Statusf("Deleted %s\n", remotePath)

	return nil
}

// runMkdir creates every missing folder along the path. CreateDirectory
// tolerates folders that already exist.
func runMkdir(cmd *cobra.Command, args []string) error {
	clean := strings.Trim(args[0], "/")
	if clean == "" {
		return errors.New("mkdir: the drive root always exists")
	}

	cc, fs, err := openDrive(cmd)
	if err != nil {
		return err
	}

	parts := strings.Split(clean, "/")

	for i := range parts {
		if err := fs.CreateDirectory(cmd.Context(), strings.Join(parts[:i+1], "/")); err != nil {
			return err
		}
	}

	cc.Statusf("Created %s\n", clean)

	return nil
}

func runMv(cmd *cobra.Command, args []string) error {
	cc, fs, err := openDrive(cmd)
	if err != nil {
		return err
	}

	if err := fs.Move(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}

	cc.Statusf("Moved %s to %s\n", args[0], args[1])

	return nil
}

func runCp(cmd *cobra.Command, args []string) error {
	wait, _ := cmd.Flags().GetBool("wait")

	cc, fs, err := openDrive(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	if !wait {
		if err := fs.Copy(ctx, args[0], args[1]); err != nil {
			return err
		}

		cc.Statusf("Copy of %s to %s started\n", args[0], args[1])

		return nil
	}

	waiter, ok := fs.(copyWaiter)
	if !ok {
		return errors.New("cp --wait: this drive cannot track copy jobs")
	}

	if err := waiter.CopyAndWait(ctx, args[0], args[1]); err != nil {
		return err
	}

	cc.Statusf("Copied %s to %s\n", args[0], args[1])

	return nil
}

// statJSONResult is the JSON output schema for stat.
type statJSONResult struct {
	*remotefs.Item
	Visibility string `json:"visibility"`
}

func runStat(cmd *cobra.Command, args []string) error {
	cc, fs, err := openDrive(cmd)
	if err != nil {
		return err
	}

	item, err := fs.Stat(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	// Drives have no per-item visibility to query; every item reports the
	// same fixed value listings carry.
	visibility := remotefs.VisibilityPublic

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, statJSONResult{Item: item, Visibility: visibility})
	}

	kind := "folder"
	if item.IsFile {
		kind = "file"
	}

	fmt.Fprintf(cc.Stdout, "Name:       %s\n", item.Name)
	fmt.Fprintf(cc.Stdout, "Path:       %s\n", item.Path)
	fmt.Fprintf(cc.Stdout, "Type:       %s\n", kind)
	fmt.Fprintf(cc.Stdout, "ID:         %s\n", item.ID)

	if item.IsFile {
		fmt.Fprintf(cc.Stdout, "Size:       %s (%d bytes)\n", formatSize(item.Size), item.Size)
		fmt.Fprintf(cc.Stdout, "MIME type:  %s\n", item.MimeType)
	}

	fmt.Fprintf(cc.Stdout, "Modified:   %s\n", item.LastModified.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(cc.Stdout, "Visibility: %s\n", visibility)

	if item.QuickXorHash != "" {
		fmt.Fprintf(cc.Stdout, "Hash:       %s\n", item.QuickXorHash)
	}

	return nil
}

// existsJSONResult is the JSON output schema for exists.
type existsJSONResult struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
	Type   string `json:"type,omitempty"`
}

func runExists(cmd *cobra.Command, args []string) error {
	cc, fs, err := openDrive(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	result := existsJSONResult{Path: args[0]}

	switch {
	case fs.FileExists(ctx, args[0]):
		result.Exists, result.Type = true, string(remotefs.TypeFile)
	case fs.DirectoryExists(ctx, args[0]):
		result.Exists, result.Type = true, string(remotefs.TypeDirectory)
	}

	if cc.Flags.JSON {
		if err := printJSON(cc.Stdout, result); err != nil {
			return err
		}
	} else if result.Exists {
		fmt.Fprintln(cc.Stdout, result.Type)
	} else {
		fmt.Fprintln(cc.Stdout, "missing")
	}

	if !result.Exists {
		return errPathMissing
	}

	return nil
}

// driveJSONItem is the JSON output schema for one configured drive.
type driveJSONItem struct {
	ID            string `json:"id"`
	Site          string `json:"site,omitempty"`
	Drive         string `json:"drive,omitempty"`
	DirectoryType string `json:"directory_type,omitempty"`
	Default       bool   `json:"default"`
}

func runDrives(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd)

	ids := cc.Factory.Identifiers()
	out := make([]driveJSONItem, 0, len(ids))

	for _, id := range ids {
		d := cc.Cfg.Drives[id]
		out = append(out, driveJSONItem{
			ID:            id,
			Site:          d.Site,
			Drive:         d.Drive,
			DirectoryType: d.DirectoryType,
			Default:       id == cc.Cfg.DefaultDrive,
		})
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, out)
	}

	if len(out) == 0 {
		cc.Statusf("No drives configured. Add a [drives.<id>] section to %s\n",
			config.ConfigPath(cc.Env, config.CLIOverrides{ConfigPath: flagConfigPath}))

		return nil
	}

	rows := make([][]string, 0, len(out))

	for _, d := range out {
		target := "site " + d.Site
		if d.Site == "" {
			target = d.DirectoryType + " " + d.Drive
		}

		marker := ""
		if d.Default {
			marker = "*"
		}

		rows = append(rows, []string{marker, d.ID, strings.TrimSpace(target)})
	}

	printTable(cc.Stdout, []string{"", "ID", "TARGET"}, rows)

	return nil
}
